package cleaner

import (
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// NewMarkdownConverter creates a reusable, goroutine-safe Converter for the
// plain-text rendition of reports:
//
//   - base plugin: strips script, style, head, meta and comments.
//   - commonmark plugin: headings, lists, links, emphasis.
//   - table plugin: status tables survive as Markdown tables.
func NewMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

// ToMarkdown converts HTML to Markdown. domain resolves relative links.
func ToMarkdown(conv *converter.Converter, htmlContent string, domain string) (string, error) {
	return conv.ConvertString(htmlContent, converter.WithDomain(domain))
}
