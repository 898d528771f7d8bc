package service

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"trendforge/internal/models"

	"github.com/PuerkitoBio/goquery"
)

// PromptData is what a target template can reference.
type PromptData struct {
	Target string
	Title  string
	URL    string
	Brief  string
	Markup string
	Text   string
}

const defaultSystemPrompt = "You are a social media editor. You rewrite curated articles into native posts for Chinese content platforms. Answer with the post only."

var defaultTemplates = map[models.Target]string{
	models.TargetKuaishou: `Write a Kuaishou short video script (under 300 characters) with a strong hook in the first line.
Editor brief: {{.Brief}}

Source article:
{{.Text}}`,
	models.TargetRed: `Write a Xiaohongshu (RED) note: catchy title, emoji-friendly short paragraphs, 3 to 5 hashtags at the end.
Editor brief: {{.Brief}}

Source article:
{{.Text}}`,
	models.TargetBilibili: `Write a Bilibili video description and a short narration outline for a 2 to 3 minute explainer.
Editor brief: {{.Brief}}

Source article:
{{.Text}}`,
	models.TargetDouyin: `Write a Douyin caption (under 120 characters) plus 3 trending-style hashtags.
Editor brief: {{.Brief}}

Source article:
{{.Text}}`,
}

// PromptRenderer builds completion requests for every target.
type PromptRenderer struct {
	system    string
	templates map[models.Target]*template.Template
}

// NewPromptRenderer parses the built-in templates, replacing any target found in
// overrides. Unknown override keys are rejected.
func NewPromptRenderer(system string, overrides map[string]string) (*PromptRenderer, error) {
	sources := make(map[models.Target]string, len(defaultTemplates))
	for target, text := range defaultTemplates {
		sources[target] = text
	}
	for key, text := range overrides {
		target, err := models.ParseTarget(key)
		if err != nil {
			return nil, fmt.Errorf("prompt template: %w", err)
		}
		sources[target] = text
	}

	r := &PromptRenderer{
		system:    strings.TrimSpace(system),
		templates: make(map[models.Target]*template.Template, len(sources)),
	}
	if r.system == "" {
		r.system = defaultSystemPrompt
	}
	for target, text := range sources {
		tmpl, err := template.New(string(target)).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", target, err)
		}
		r.templates[target] = tmpl
	}
	return r, nil
}

// Render produces the prompt for one target.
func (r *PromptRenderer) Render(target models.Target, item *models.Item, form models.GenerationForm) (string, string, error) {
	tmpl, ok := r.templates[target]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", models.ErrUnknownTarget, target)
	}

	text, err := MarkupText(form.Markup)
	if err != nil {
		return "", "", err
	}

	data := PromptData{
		Target: string(target),
		Title:  item.Title,
		URL:    item.URL,
		Brief:  strings.TrimSpace(form.Brief),
		Markup: form.Markup,
		Text:   text,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render %s prompt: %w", target, err)
	}
	return r.system, buf.String(), nil
}

const blockSelectors = "p, div, br, li, h1, h2, h3, h4, h5, h6, blockquote, section, article, tr"

// MarkupText converts curated HTML into plain text with one block per line.
func MarkupText(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("parse markup: %w", err)
	}

	doc.Find("script, style, noscript").Remove()
	doc.Find(blockSelectors).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}
