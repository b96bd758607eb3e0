package handler

import (
	"bytes"
	"html/template"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/quillpost/internal/db"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
	sanitizer     = bluemonday.UGCPolicy()
	textSanitizer = bluemonday.StrictPolicy()
)

const excerptRunes = 160

// renderContent converts a post body to safe HTML.
func renderContent(content, format string) (template.HTML, error) {
	source := content
	if format == db.ContentFormatMarkdown {
		var buf bytes.Buffer
		if err := markdownEngine.Convert([]byte(content), &buf); err != nil {
			return "", err
		}
		source = buf.String()
	}
	return template.HTML(sanitizer.Sanitize(source)), nil
}

// excerpt returns the first characters of the body as plain text.
func excerpt(content, format string) string {
	rendered, err := renderContent(content, format)
	if err != nil {
		rendered = template.HTML(content)
	}
	text := strings.Join(strings.Fields(textSanitizer.Sanitize(string(rendered))), " ")
	if utf8.RuneCountInString(text) <= excerptRunes {
		return text
	}
	return string([]rune(text)[:excerptRunes]) + "…"
}
