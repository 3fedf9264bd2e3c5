// Package richtext turns editor documents stored as template bodies into plain text.
package richtext

import (
	"encoding/json"
	"strings"
)

type node struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Content []node `json:"content,omitempty"`
}

// Flatten renders a serialized editor document ({"type":"doc","content":[...]}) as plain
// text: one line per block, hardBreak as a newline. Any other body is returned unchanged.
func Flatten(body string) string {
	trimmed := strings.TrimSpace(body)
	if !strings.HasPrefix(trimmed, "{") {
		return body
	}

	var doc node
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil || doc.Type != "doc" {
		return body
	}

	var lines []string
	for _, block := range doc.Content {
		lines = append(lines, blockLines(block)...)
	}
	return strings.Join(lines, "\n")
}

func blockLines(n node) []string {
	switch n.Type {
	case "bulletList", "orderedList", "listItem", "blockquote":
		var lines []string
		for _, child := range n.Content {
			lines = append(lines, blockLines(child)...)
		}
		return lines
	default:
		var b strings.Builder
		inline(n, &b)
		return []string{b.String()}
	}
}

func inline(n node, b *strings.Builder) {
	switch n.Type {
	case "text":
		b.WriteString(n.Text)
	case "hardBreak":
		b.WriteString("\n")
	default:
		for _, child := range n.Content {
			inline(child, b)
		}
	}
}
