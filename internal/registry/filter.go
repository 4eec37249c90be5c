package registry

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ImportToolFilter hides import tools from discovery unless imports are enabled.
type ImportToolFilter struct {
	allowImports bool
}

// NewImportToolFilter constructs a filter for the configured imports flag.
func NewImportToolFilter(allowImports bool) *ImportToolFilter {
	return &ImportToolFilter{allowImports: allowImports}
}

// FilterTools implements server tool filtering semantics. When imports are
// disabled, tools prefixed import_ are excluded.
func (f *ImportToolFilter) FilterTools(ctx context.Context, tools []mcp.Tool) []mcp.Tool {
	if f.allowImports {
		return tools
	}
	out := make([]mcp.Tool, 0, len(tools))
	for _, t := range tools {
		if strings.HasPrefix(strings.ToLower(t.Name), "import_") {
			continue
		}
		out = append(out, t)
	}
	return out
}
