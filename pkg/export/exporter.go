package export

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/trolo/export/pkg/model"
	"github.com/trolo/export/pkg/tensor"
)

// Exporter converts a deployable model into one artifact format. The
// returned artifact path may not exist; the dispatcher checks.
type Exporter interface {
	Export(ctx context.Context, m *model.DeployableModel, req Request) (*Artifact, error)
}

// stage is a per-export scratch directory for files handed to backends.
type stage struct {
	dir string
}

func newStage() (*stage, error) {
	dir, err := os.MkdirTemp("", "trolo-export-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &stage{dir: dir}, nil
}

func (s *stage) path(name string) string {
	return filepath.Join(s.dir, name)
}

// writeTensor writes the raw little-endian bytes of t.
func (s *stage) writeTensor(name string, t *tensor.Tensor) (string, error) {
	p := s.path(name)
	if err := os.WriteFile(p, t.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", name, err)
	}
	return p, nil
}

func (s *stage) Close() error {
	return os.RemoveAll(s.dir)
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed)) //nolint:gosec
}
