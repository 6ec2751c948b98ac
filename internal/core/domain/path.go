package domain

import (
	"path/filepath"
	"strings"
	"unique"
)

// Path is an interned file path.
// Header paths repeat across hundreds of dependency-listing files, so nodes
// hold handles instead of copies.
type Path struct {
	h unique.Handle[string]
}

// NewPath interns p in its cleaned form. An empty string yields the zero Path.
func NewPath(p string) Path {
	if p == "" {
		return Path{}
	}
	return Path{h: unique.Make(filepath.Clean(p))}
}

// String returns the path text.
func (p Path) String() string {
	if p.IsZero() {
		return ""
	}
	return p.h.Value()
}

// IsZero reports whether p is the empty path.
func (p Path) IsZero() bool {
	var zero unique.Handle[string]
	return p.h == zero
}

// Dir returns the directory part of the path.
func (p Path) Dir() string {
	return filepath.Dir(p.String())
}

// Base returns the last element of the path.
func (p Path) Base() string {
	return filepath.Base(p.String())
}

// Ext returns the file extension including the dot.
func (p Path) Ext() string {
	return filepath.Ext(p.String())
}

// MarshalText implements encoding.TextMarshaler.
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Path) UnmarshalText(text []byte) error {
	*p = NewPath(string(text))
	return nil
}

// Paths interns every element of ps.
func Paths(ps ...string) []Path {
	res := make([]Path, 0, len(ps))
	for _, s := range ps {
		res = append(res, NewPath(s))
	}
	return res
}

// RemoveDoubleDots rewrites parent references so a source outside the project
// still maps to a location inside the object directory.
// "../" becomes "_/" and a trailing ".." becomes "_".
func RemoveDoubleDots(p string) string {
	p = filepath.ToSlash(p)
	p = strings.ReplaceAll(p, "../", "_/")
	if p == ".." {
		return "_"
	}
	if strings.HasSuffix(p, "/..") {
		p = strings.TrimSuffix(p, "..") + "_"
	}
	return filepath.FromSlash(p)
}

// StripExtension returns p without its final extension.
func StripExtension(p string) string {
	return strings.TrimSuffix(p, filepath.Ext(p))
}
