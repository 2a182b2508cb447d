package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProcessCommandDoc(t *testing.T) {
	in := "## trolo-export configs\n\nList the built-in model configs\n\n### Synopsis\n\nList them.\n\n\n```\ntrolo-export configs [flags]\n```\n\n### Options\n\n```\n  -h, --help   help for configs\n```\n\n### Options inherited from parent commands\n\n```\n  -v, --verbose\n```\n\n### SEE ALSO\n\n* [trolo-export](trolo-export.md)\n"
	out := processCommandDoc(in)
	require.Equal(t, "## `trolo-export configs`\n\nList the built-in model configs\n\nList them.\n\n```\ntrolo-export configs [flags]\n```\n\n**Options**\n\n```\n  -h, --help   help for configs\n```", out)
}

func TestGenerateDocs(t *testing.T) {
	out := filepath.Join(t.TempDir(), "docs", "cli.md")
	require.NoError(t, generateDocs(out))
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(b), "## `trolo-export export`")
	require.Contains(t, string(b), "--input-size")
	require.NotContains(t, string(b), "SEE ALSO")
}
