// Package web embeds the HTML templates.
package web

import (
	"embed"
	"html/template"
	"time"
)

//go:embed template/*.html
var templateFS embed.FS

// Templates parses all page templates.
func Templates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("Jan 2, 2006")
		},
	}).ParseFS(templateFS, "template/*.html")
}
