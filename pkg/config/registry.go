package config

import (
	"embed"
	"path"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/trolo/export/pkg/checkpoint"
)

//go:embed data/configs/*.yml
var registryFS embed.FS

const registryDir = "data/configs"

// Names lists the built-in config names in sorted order.
func Names() []string {
	entries, err := registryFS.ReadDir(registryDir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), path.Ext(e.Name())))
	}
	slices.Sort(names)
	return names
}

// Lookup returns the raw built-in config blob for name.
func Lookup(name string) ([]byte, bool) {
	name = checkpoint.NormalizeName(name)
	name = strings.TrimSuffix(name, ".yml")
	name = strings.TrimSuffix(name, ".yaml")
	blob, err := registryFS.ReadFile(path.Join(registryDir, name+".yml"))
	if err != nil {
		return nil, false
	}
	return blob, true
}

// Infer picks the built-in config whose name is the longest prefix of the
// model identifier's stem, so "dfine_n_coco_ft.pth" maps to dfine-n.
func Infer(identifier string) (string, bool) {
	stem := checkpoint.NormalizeName(identifier)
	best := ""
	for _, name := range Names() {
		if !strings.HasPrefix(stem, name) {
			continue
		}
		// require a separator after the prefix so rtdetr-r10 never claims rtdetr-r101
		if rest := stem[len(name):]; rest != "" && rest[0] != '-' && rest[0] != '.' {
			continue
		}
		if len(name) > len(best) {
			best = name
		}
	}
	return best, best != ""
}
