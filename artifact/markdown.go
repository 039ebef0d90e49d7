package artifact

import (
	"fmt"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// Markdown converts a generated HTML document to a Markdown preview.
func Markdown(raw []byte) (string, error) {
	md, err := mdConverter.ConvertString(string(raw))
	if err != nil {
		return "", fmt.Errorf("artifact: markdown: %w", err)
	}
	return md, nil
}
