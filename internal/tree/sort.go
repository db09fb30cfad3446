package tree

import (
	"fmt"
	"sort"
	"strings"
)

// SortKey selects the field children are ordered by.
type SortKey string

const (
	ByName     SortKey = "name"
	ByModified SortKey = "mtime"
)

// Sort is a computed ordering over a directory's children. Directories
// always sort before files regardless of key and direction.
type Sort struct {
	Key        SortKey
	Descending bool
}

// DefaultSort orders by name ascending.
var DefaultSort = Sort{Key: ByName}

// ParseSort parses "key:dir" strings such as "name:asc" or "mtime:desc".
// The empty string yields DefaultSort.
func ParseSort(s string) (Sort, error) {
	if s == "" {
		return DefaultSort, nil
	}
	key, dir, _ := strings.Cut(s, ":")
	out := Sort{}
	switch SortKey(key) {
	case ByName, ByModified:
		out.Key = SortKey(key)
	default:
		return Sort{}, fmt.Errorf("tree: unknown sort key %q", key)
	}
	switch dir {
	case "", "asc":
	case "desc":
		out.Descending = true
	default:
		return Sort{}, fmt.Errorf("tree: unknown sort direction %q", dir)
	}
	return out, nil
}

// String renders the sort back to its "key:dir" form.
func (o Sort) String() string {
	dir := "asc"
	if o.Descending {
		dir = "desc"
	}
	return string(o.Key) + ":" + dir
}

func sortNodes(nodes []Node, order Sort) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if (a.Type == Directory) != (b.Type == Directory) {
			return a.Type == Directory
		}
		c := 0
		if order.Key == ByModified {
			switch {
			case a.LastModified.Before(b.LastModified):
				c = -1
			case a.LastModified.After(b.LastModified):
				c = 1
			}
		}
		if c == 0 {
			c = strings.Compare(strings.ToLower(a.Basename), strings.ToLower(b.Basename))
		}
		if order.Descending {
			return c > 0
		}
		return c < 0
	})
}
