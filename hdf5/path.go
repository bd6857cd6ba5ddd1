package hdf5

import (
	"fmt"
	"strings"
)

// ParseAttrPath splits an attribute path "/object/path@name" into the
// object path and the attribute name. "@name" and "/@name" address the root
// group.
func ParseAttrPath(p string) (objectPath, attrName string, err error) {
	i := strings.LastIndex(p, "@")
	if i < 0 {
		return "", "", fmt.Errorf("attribute path %q has no '@'", p)
	}
	objectPath, attrName = CleanPath(p[:i]), p[i+1:]
	if attrName == "" {
		return "", "", fmt.Errorf("attribute path %q has an empty name", p)
	}
	return objectPath, attrName, nil
}

// JoinAttrPath is the inverse of ParseAttrPath.
func JoinAttrPath(objectPath, attrName string) string {
	if p := CleanPath(objectPath); p != "/" {
		return p + "@" + attrName
	}
	return "/@" + attrName
}

// SplitPath returns the non-empty components of p.
func SplitPath(p string) []string {
	var parts []string
	for _, s := range strings.Split(p, "/") {
		if s != "" && s != "." {
			parts = append(parts, s)
		}
	}
	return parts
}

// CleanPath returns p with a single leading slash and no trailing one.
func CleanPath(p string) string {
	return "/" + strings.Join(SplitPath(p), "/")
}
