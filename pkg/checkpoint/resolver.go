package checkpoint

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/trolo/export/pkg/errors"
	"github.com/trolo/export/pkg/util/console"
	"github.com/trolo/export/pkg/util/files"
)

// Fetcher downloads url to dest.
type Fetcher interface {
	Fetch(ctx context.Context, url string, dest string) error
}

// Resolver turns a model identifier into a checkpoint path.
type Resolver struct {
	// CacheDir holds pretrained checkpoints resolved by name.
	CacheDir string
	// BaseURL, when set, is where missing pretrained checkpoints are fetched from.
	BaseURL string
	Fetcher Fetcher
}

// Resolve returns the checkpoint path for identifier: the identifier itself
// when it names an existing file, otherwise the cached pretrained checkpoint
// for a registered model name.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (string, error) {
	if strings.TrimSpace(identifier) == "" {
		return "", errors.ModelNotFound("must specify a model name or checkpoint path")
	}
	if files.IsFile(identifier) {
		return filepath.Abs(identifier)
	}
	console.Warnf("%s not found, resolving it as a model name", identifier)

	entry, ok := LookupPretrained(identifier)
	if !ok {
		return "", errors.ModelNotFound("%s is neither a checkpoint file nor a known model name (known: %s)", identifier, strings.Join(PretrainedNames(), ", "))
	}

	cacheDir, err := files.ExpandDir(r.CacheDir)
	if err != nil {
		return "", err
	}
	cached := filepath.Join(cacheDir, entry.File)
	if files.IsFile(cached) {
		console.Debugf("Using cached checkpoint %s", cached)
		return cached, nil
	}
	if r.BaseURL == "" || r.Fetcher == nil {
		return "", errors.ModelNotFound("checkpoint for %s is not in %s and no download URL is configured", entry.Name, cacheDir)
	}

	url := strings.TrimSuffix(r.BaseURL, "/") + "/" + entry.File
	console.Infof("Downloading %s from %s", entry.Name, url)
	if err := r.Fetcher.Fetch(ctx, url, cached); err != nil {
		return "", fmt.Errorf("failed to download %s: %w", entry.Name, err)
	}
	return cached, nil
}
