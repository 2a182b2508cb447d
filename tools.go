//go:build tools
// +build tools

// https://github.com/go-modules-by-example/index/blob/master/010_tools/README.md

package tools

import (
	_ "golang.org/x/tools/cmd/goimports"
	_ "gotest.tools/gotestsum"
)
