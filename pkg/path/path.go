package path

import (
	go_path "path"
	"path/filepath"
	"strings"
)

func TrimExt(s string) string {
	return strings.TrimSuffix(s, go_path.Ext(s))
}

// Stem returns the base name of p without its extension.
func Stem(p string) string {
	return TrimExt(filepath.Base(p))
}

// Sibling returns a path in the same directory as p, named after p's stem
// followed by suffix. Sibling("/ckpt/dfine_n.pth", ".onnx") is "/ckpt/dfine_n.onnx".
func Sibling(p string, suffix string) string {
	return filepath.Join(filepath.Dir(p), Stem(p)+suffix)
}

// HasExt reports whether p ends in one of exts, ignoring case.
func HasExt(p string, exts ...string) bool {
	ext := strings.ToLower(go_path.Ext(p))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
