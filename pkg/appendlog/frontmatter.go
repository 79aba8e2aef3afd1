package appendlog

import (
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelim = "---"

// Document is a Markdown file split into YAML frontmatter and body.
type Document struct {
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Body        string         `json:"body"`
}

// ParseDocument splits content into frontmatter and body. Content without a
// leading frontmatter block, or with one that fails to parse as YAML, comes
// back whole as the body.
func ParseDocument(content string) *Document {
	doc := &Document{Body: content}

	rest, ok := strings.CutPrefix(content, frontmatterDelim+"\n")
	if !ok {
		rest, ok = strings.CutPrefix(content, frontmatterDelim+"\r\n")
		if !ok {
			return doc
		}
	}

	end := strings.Index(rest, "\n"+frontmatterDelim)
	if end < 0 {
		return doc
	}
	block := rest[:end]
	body := rest[end+1+len(frontmatterDelim):]
	body = strings.TrimPrefix(body, "\r")
	body = strings.TrimPrefix(body, "\n")

	var fm map[string]any
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil || fm == nil {
		return doc
	}
	doc.Frontmatter = fm
	doc.Body = body
	return doc
}

// Title returns the document title: the frontmatter "title" key when
// present, else the first ATX heading in the body.
func (d *Document) Title() string {
	if t, ok := d.Frontmatter["title"].(string); ok && t != "" {
		return t
	}
	for _, line := range strings.Split(d.Body, "\n") {
		line = strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(after)
		}
	}
	return ""
}
