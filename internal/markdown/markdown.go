// Package markdown inspects model-produced markdown using goldmark with the
// GitHub Flavored Markdown table extension enabled.
package markdown

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Summary describes the tabular content found in a markdown document.
type Summary struct {
	Tables int
	Rows   int
}

var parser = goldmark.New(goldmark.WithExtensions(extension.Table)).Parser()

// Inspect parses source and counts GFM tables and their body rows. Header
// rows are not counted.
func Inspect(source string) Summary {
	var summary Summary
	if source == "" {
		return summary
	}
	doc := parser.Parse(text.NewReader([]byte(source)))
	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node.Kind() {
		case east.KindTable:
			summary.Tables++
		case east.KindTableRow:
			summary.Rows++
		}
		return ast.WalkContinue, nil
	})
	return summary
}
