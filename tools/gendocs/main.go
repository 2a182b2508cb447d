package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/trolo/export/pkg/cli"
	"github.com/trolo/export/pkg/util/console"
)

func main() {
	var output string

	rootCmd := &cobra.Command{
		Use:   "gendocs",
		Short: "Generate the trolo-export CLI reference",
		Run: func(cmd *cobra.Command, args []string) {
			if err := generateDocs(output); err != nil {
				console.Fatalf("Failed to generate docs: %s", err)
			}
			console.Infof("Generated CLI docs at %s", output)
		},
	}

	rootCmd.Flags().StringVarP(&output, "output", "o", "docs/cli.md", "Output file path")
	if err := rootCmd.Execute(); err != nil {
		console.Fatal(err.Error())
	}
}

func generateDocs(outputPath string) error {
	tmpDir, err := os.MkdirTemp("", "trolo-export-docs-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	cmd, err := cli.NewRootCommand()
	if err != nil {
		return fmt.Errorf("failed to create root command: %w", err)
	}
	cmd.DisableAutoGenTag = true

	if err := doc.GenMarkdownTree(cmd, tmpDir); err != nil {
		return fmt.Errorf("failed to generate markdown: %w", err)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return fmt.Errorf("failed to read temp dir: %w", err)
	}
	// root first, then subcommands alphabetically
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var content strings.Builder
	content.WriteString("# CLI reference\n\n")
	content.WriteString("<!-- This file is auto-generated. Do not edit manually. -->\n\n")
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(tmpDir, name))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		content.WriteString(processCommandDoc(string(data)))
		content.WriteString("\n\n")
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return os.WriteFile(outputPath, []byte(strings.TrimRight(content.String(), "\n")+"\n"), 0o644)
}

// processCommandDoc trims a cobra markdown page down to one section of the
// combined reference.
func processCommandDoc(content string) string {
	for _, marker := range []string{"### SEE ALSO", "### Options inherited from parent commands"} {
		if idx := strings.Index(content, marker); idx != -1 {
			content = content[:idx]
		}
	}
	content = strings.TrimRight(content, "\n")

	var result []string
	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.HasPrefix(line, "## trolo-export"):
			result = append(result, "## `"+strings.TrimPrefix(line, "## ")+"`")
		case line == "### Synopsis":
			continue
		case line == "### Options", line == "### Examples":
			if len(result) > 0 && strings.TrimSpace(result[len(result)-1]) != "" {
				result = append(result, "")
			}
			result = append(result, "**"+strings.TrimPrefix(line, "### ")+"**")
		default:
			result = append(result, line)
		}
	}
	return strings.Join(removeConsecutiveBlankLines(result), "\n")
}

func removeConsecutiveBlankLines(lines []string) []string {
	var result []string
	prevBlank := false
	for _, line := range lines {
		isBlank := strings.TrimSpace(line) == ""
		if isBlank && prevBlank {
			continue
		}
		result = append(result, line)
		prevBlank = isBlank
	}
	return result
}
