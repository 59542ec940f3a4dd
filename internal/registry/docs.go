package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gomarkdown/markdown"
)

// MethodCatalogMarkdown renders the registry's method documentation as a
// Markdown document, one section per method, sorted by name.
func (r *Registry) MethodCatalogMarkdown() string {
	docs := r.Methods()
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })

	var sb strings.Builder
	sb.WriteString("# Registered methods\n\n")
	for _, d := range docs {
		fmt.Fprintf(&sb, "## %s\n\n", d.Name)
		if d.Signature != "" {
			fmt.Fprintf(&sb, "Signature: `%s`\n\n", d.Signature)
		}
		if d.Help != "" {
			sb.WriteString(d.Help)
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}

// MethodCatalogHTML renders the same catalog to HTML for the status
// dashboard.
func (r *Registry) MethodCatalogHTML() string {
	return string(markdown.ToHTML([]byte(r.MethodCatalogMarkdown()), nil, nil))
}
