package scene

import "strings"

// SplitPath returns the prim names in an absolute path.
func SplitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// JoinPath appends names to a prim path.
func JoinPath(base string, names ...string) string {
	out := strings.TrimSuffix(base, "/")
	for _, n := range names {
		out += "/" + n
	}
	if out == "" {
		return "/"
	}
	return out
}

// ParentPath returns the parent prim path; the parent of a top-level prim is "/".
func ParentPath(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

// BaseName returns the last path element.
func BaseName(path string) string {
	return path[strings.LastIndexByte(path, '/')+1:]
}

// HasPathPrefix reports whether path equals prefix or lies beneath it.
func HasPathPrefix(path, prefix string) bool {
	if prefix == "/" {
		return strings.HasPrefix(path, "/")
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// ReplacePathPrefix rebases path from oldPrefix onto newPrefix.
func ReplacePathPrefix(path, oldPrefix, newPrefix string) (string, bool) {
	if !HasPathPrefix(path, oldPrefix) {
		return path, false
	}
	return newPrefix + path[len(oldPrefix):], true
}

// SplitProperty splits "/a/b.outputs:rgb" into ("/a/b", "outputs:rgb").
func SplitProperty(target string) (prim, prop string) {
	slash := strings.LastIndexByte(target, '/')
	dot := strings.IndexByte(target[slash+1:], '.')
	if dot < 0 {
		return target, ""
	}
	dot += slash + 1
	return target[:dot], target[dot+1:]
}
