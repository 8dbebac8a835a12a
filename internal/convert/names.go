package convert

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	invalidName = regexp.MustCompile(`[^A-Za-z0-9_]`)
	repeatedSep = regexp.MustCompile(`_{2,}`)
)

// CleanName turns an arbitrary name into a valid prim name.
func CleanName(name string) string {
	s := invalidName.ReplaceAllString(name, "_")
	s = repeatedSep.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "_"
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "_" + s
	}
	return s
}

// namer hands out unique child names per parent path, in request order.
type namer struct {
	used map[string]map[string]bool
}

func newNamer() *namer {
	return &namer{used: make(map[string]map[string]bool)}
}

// reserve marks name as taken under parent.
func (n *namer) reserve(parent, name string) {
	set := n.used[parent]
	if set == nil {
		set = make(map[string]bool)
		n.used[parent] = set
	}
	set[name] = true
}

// unique returns the cleaned name, suffixed _1, _2 ... when taken.
func (n *namer) unique(parent, name string) string {
	base := CleanName(name)
	candidate := base
	for i := 1; n.used[parent][candidate]; i++ {
		candidate = base + "_" + strconv.Itoa(i)
	}
	n.reserve(parent, candidate)
	return candidate
}
