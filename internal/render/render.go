// Package render produces the static digest page. The page is a pure
// function of the digest state: rendering the same state twice yields
// byte-identical output.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/jhchen-tw/inbox-digest/internal/digest"
)

//go:embed page.html.tmpl
var pageFS embed.FS

type Renderer struct {
	title        string
	placeholders bool
	tmpl         *template.Template
}

func New(title string, placeholders bool) (*Renderer, error) {
	tmpl, err := template.ParseFS(pageFS, "page.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("render: parse template: %w", err)
	}
	return &Renderer{
		title:        title,
		placeholders: placeholders,
		tmpl:         tmpl,
	}, nil
}

type pageData struct {
	Title   string
	Date    string
	Entries []entryView
}

type entryView struct {
	Index         int
	Title         string
	OriginalTitle string
	Summary       string
	SourceLine    string
	Category      string
	Domain        string
	Published     string
	ImageRef      string
	Degraded      bool
	Gradient      template.CSS
}

// Render builds the page for the given state. Entries appear newest first;
// entries published at the same instant are ordered by fingerprint so the
// page never depends on arrival order.
func (r *Renderer) Render(st *digest.State) ([]byte, error) {
	entries := st.Sorted()

	data := pageData{Title: r.title}
	if len(entries) > 0 {
		data.Date = entries[0].PublishedAt.Format("2006-01-02")
	}

	for i, e := range entries {
		v := entryView{
			Index:     i + 1,
			Title:     e.Title,
			Summary:   e.Summary,
			Category:  e.Category,
			Domain:    e.SourceDomain,
			Published: e.PublishedAt.Format("2006-01-02 15:04"),
			ImageRef:  e.ImageRef,
			Degraded:  e.Status == digest.StatusFailedSummary,
		}
		if e.TranslatedTitle != "" {
			v.Title = e.TranslatedTitle
			if e.TranslatedTitle != e.Title {
				v.OriginalTitle = e.Title
			}
		}
		v.SourceLine = sourceLine(e)
		if v.ImageRef == "" && r.placeholders {
			v.Gradient = gradientFor(v.Title)
		}
		data.Entries = append(data.Entries, v)
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render: execute template: %w", err)
	}
	return buf.Bytes(), nil
}

func sourceLine(e digest.Entry) string {
	name := e.SourceName
	if name == "" {
		name = e.SourceDomain
	}
	if name == "" {
		name = "未知來源"
	}
	if e.Category != "" {
		return name + " · " + e.Category
	}
	return name
}

// The placeholder palettes of the thumbnail gradients. The palette index is
// derived from the title so a story keeps its colors across runs.
var placeholderPalettes = [][3]string{
	{"#e0f2fe", "#bae6fd", "#93c5fd"},
	{"#ede9fe", "#ddd6fe", "#c4b5fd"},
	{"#ffe4e6", "#fecdd3", "#fda4af"},
	{"#dcfce7", "#bbf7d0", "#86efac"},
	{"#fef3c7", "#fde68a", "#fcd34d"},
}

func gradientFor(title string) template.CSS {
	sum := 0
	for _, r := range title {
		sum += int(r)
	}
	p := placeholderPalettes[sum%len(placeholderPalettes)]
	return template.CSS(fmt.Sprintf("background: linear-gradient(140deg, %s 0%%, %s 45%%, %s 100%%);", p[0], p[1], p[2]))
}
