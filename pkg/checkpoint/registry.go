package checkpoint

import (
	"path/filepath"
	"strings"

	"golang.org/x/exp/slices"
)

// Pretrained describes a published checkpoint that can be referred to by name.
type Pretrained struct {
	Name string
	File string
}

var pretrained = map[string]Pretrained{}

func init() {
	for _, name := range []string{
		"dfine-n", "dfine-s", "dfine-m", "dfine-l", "dfine-x",
		"rtdetr-r18", "rtdetr-r34", "rtdetr-r50", "rtdetr-r101",
	} {
		pretrained[name] = Pretrained{Name: name, File: strings.ReplaceAll(name, "-", "_") + ".pth"}
	}
}

// NormalizeName lowercases a model identifier, drops a checkpoint extension
// and treats '_' like '-'.
func NormalizeName(identifier string) string {
	name := strings.ToLower(strings.TrimSpace(filepath.Base(identifier)))
	for _, ext := range []string{".pth", ".pt", ".ckpt", ".safetensors"} {
		name = strings.TrimSuffix(name, ext)
	}
	return strings.ReplaceAll(name, "_", "-")
}

// LookupPretrained finds a registry entry by model name.
func LookupPretrained(identifier string) (Pretrained, bool) {
	p, ok := pretrained[NormalizeName(identifier)]
	return p, ok
}

// PretrainedNames lists the registry in sorted order.
func PretrainedNames() []string {
	names := make([]string, 0, len(pretrained))
	for name := range pretrained {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
