package export

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
)

func decodeContent(content json.RawMessage) map[string]any {
	if len(content) == 0 {
		return nil
	}
	var root map[string]any
	if err := json.Unmarshal(content, &root); err != nil {
		return nil
	}
	return root
}

// RenderHTML converts a content tree to an HTML fragment. Image sources pass
// through images when it is non-nil.
func RenderHTML(content json.RawMessage, images ImageResolver) string {
	root := decodeContent(content)
	if root == nil {
		return ""
	}
	r := renderer{images: images}
	return r.node(root)
}

type renderer struct {
	images ImageResolver
}

func (r renderer) node(node map[string]any) string {
	nodeType, _ := node["type"].(string)
	if nodeType == "" {
		return ""
	}

	switch nodeType {
	case "doc":
		return r.content(node["content"])
	case "paragraph":
		return fmt.Sprintf("<p>%s</p>\n", r.content(node["content"]))
	case "heading":
		level := 1
		if attrs, ok := node["attrs"].(map[string]any); ok {
			if lvl, ok := attrs["level"].(float64); ok && lvl >= 1 && lvl <= 6 {
				level = int(lvl)
			}
		}
		return fmt.Sprintf("<h%d>%s</h%d>\n", level, r.content(node["content"]), level)
	case "bulletList":
		return fmt.Sprintf("<ul>\n%s</ul>\n", r.content(node["content"]))
	case "orderedList":
		return fmt.Sprintf("<ol>\n%s</ol>\n", r.content(node["content"]))
	case "listItem":
		return fmt.Sprintf("<li>%s</li>\n", r.content(node["content"]))
	case "blockquote":
		return fmt.Sprintf("<blockquote>\n%s</blockquote>\n", r.content(node["content"]))
	case "codeBlock":
		// text children are escaped once here, without marks
		return fmt.Sprintf("<pre><code>%s</code></pre>\n", html.EscapeString(plainText(node)))
	case "text":
		text, _ := node["text"].(string)
		marks, _ := node["marks"].([]any)
		return renderTextWithMarks(text, marks)
	case "image":
		return r.image(node)
	case "hardBreak":
		return "<br>"
	case "table":
		return fmt.Sprintf("<table>\n%s</table>\n", r.content(node["content"]))
	case "tableRow":
		return fmt.Sprintf("<tr>\n%s</tr>\n", r.content(node["content"]))
	case "tableCell":
		return fmt.Sprintf("<td>%s</td>\n", r.content(node["content"]))
	case "tableHeader":
		return fmt.Sprintf("<th>%s</th>\n", r.content(node["content"]))
	case "horizontalRule":
		return "<hr>\n"
	default:
		return r.content(node["content"])
	}
}

func (r renderer) content(content any) string {
	items, ok := content.([]any)
	if !ok {
		return ""
	}
	var result strings.Builder
	for _, item := range items {
		if node, ok := item.(map[string]any); ok {
			result.WriteString(r.node(node))
		}
	}
	return result.String()
}

func (r renderer) image(node map[string]any) string {
	attrs, _ := node["attrs"].(map[string]any)
	src, _ := attrs["src"].(string)
	alt, _ := attrs["alt"].(string)
	if r.images != nil {
		src = r.images(src)
	}
	if src == "" {
		return ""
	}
	return fmt.Sprintf(`<img src="%s" alt="%s">`, html.EscapeString(src), html.EscapeString(alt))
}

// renderTextWithMarks renders text with formatting marks
func renderTextWithMarks(text string, marks []any) string {
	if text == "" {
		return ""
	}

	htmlText := html.EscapeString(text)

	// Apply marks from outside in
	for i := len(marks) - 1; i >= 0; i-- {
		mark, ok := marks[i].(map[string]any)
		if !ok {
			continue
		}
		markType, _ := mark["type"].(string)

		switch markType {
		case "bold":
			htmlText = fmt.Sprintf("<strong>%s</strong>", htmlText)
		case "italic":
			htmlText = fmt.Sprintf("<em>%s</em>", htmlText)
		case "code":
			htmlText = fmt.Sprintf("<code>%s</code>", htmlText)
		case "link":
			href := ""
			if attrs, ok := mark["attrs"].(map[string]any); ok {
				href, _ = attrs["href"].(string)
			}
			htmlText = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(href), htmlText)
		case "strike":
			htmlText = fmt.Sprintf("<s>%s</s>", htmlText)
		case "underline":
			htmlText = fmt.Sprintf("<u>%s</u>", htmlText)
		}
	}

	return htmlText
}

var blockTypes = map[string]bool{
	"paragraph":   true,
	"heading":     true,
	"listItem":    true,
	"blockquote":  true,
	"codeBlock":   true,
	"tableCell":   true,
	"tableHeader": true,
}

// PlainText flattens content to text with one line per block. It feeds the
// search index.
func PlainText(content json.RawMessage) string {
	root := decodeContent(content)
	if root == nil {
		return ""
	}
	lines := make([]string, 0)
	collectBlocks(root, &lines)
	return strings.Join(lines, "\n")
}

func collectBlocks(node map[string]any, lines *[]string) {
	nodeType, _ := node["type"].(string)
	if blockTypes[nodeType] && !hasBlockChild(node) {
		if text := strings.TrimSpace(plainText(node)); text != "" {
			*lines = append(*lines, text)
		}
		return
	}
	items, _ := node["content"].([]any)
	for _, item := range items {
		if child, ok := item.(map[string]any); ok {
			collectBlocks(child, lines)
		}
	}
}

func hasBlockChild(node map[string]any) bool {
	items, _ := node["content"].([]any)
	for _, item := range items {
		child, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if childType, _ := child["type"].(string); blockTypes[childType] || childType == "bulletList" || childType == "orderedList" {
			return true
		}
	}
	return false
}

func plainText(node map[string]any) string {
	if text, ok := node["text"].(string); ok {
		return text
	}
	if nodeType, _ := node["type"].(string); nodeType == "hardBreak" {
		return " "
	}
	items, _ := node["content"].([]any)
	var b strings.Builder
	for _, item := range items {
		if child, ok := item.(map[string]any); ok {
			b.WriteString(plainText(child))
		}
	}
	return b.String()
}

// ImageSources lists the distinct image src attributes in content, in
// document order.
func ImageSources(content json.RawMessage) []string {
	root := decodeContent(content)
	if root == nil {
		return nil
	}
	seen := make(map[string]bool)
	out := make([]string, 0)
	var walk func(map[string]any)
	walk = func(node map[string]any) {
		if nodeType, _ := node["type"].(string); nodeType == "image" {
			attrs, _ := node["attrs"].(map[string]any)
			if src, _ := attrs["src"].(string); src != "" && !seen[src] {
				seen[src] = true
				out = append(out, src)
			}
		}
		items, _ := node["content"].([]any)
		for _, item := range items {
			if child, ok := item.(map[string]any); ok {
				walk(child)
			}
		}
	}
	walk(root)
	return out
}
