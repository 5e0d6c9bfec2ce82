package export

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

var (
	boldPattern   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicPattern = regexp.MustCompile(`\*(.+?)\*`)
	codePattern   = regexp.MustCompile("`([^`]+)`")
)

// MarkdownToHTML converts the subset of markdown the generation backend
// emits (headings, unordered and ordered lists, bold/italic/inline code,
// paragraphs) into HTML for the export template.
func MarkdownToHTML(markdown string) string {
	var out strings.Builder
	var paragraph []string
	listOpen := ""

	flushParagraph := func() {
		if len(paragraph) == 0 {
			return
		}
		out.WriteString("<p>" + renderInline(strings.Join(paragraph, " ")) + "</p>\n")
		paragraph = nil
	}
	closeList := func() {
		if listOpen != "" {
			out.WriteString("</" + listOpen + ">\n")
			listOpen = ""
		}
	}

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			flushParagraph()
			closeList()
		case strings.HasPrefix(trimmed, "#"):
			flushParagraph()
			closeList()
			level := 0
			for level < len(trimmed) && trimmed[level] == '#' && level < 6 {
				level++
			}
			text := strings.TrimSpace(trimmed[level:])
			out.WriteString(fmt.Sprintf("<h%d>%s</h%d>\n", level, renderInline(text), level))
		case strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* "):
			flushParagraph()
			if listOpen != "ul" {
				closeList()
				out.WriteString("<ul>\n")
				listOpen = "ul"
			}
			out.WriteString("<li>" + renderInline(trimmed[2:]) + "</li>\n")
		case orderedItem(trimmed) != "":
			flushParagraph()
			if listOpen != "ol" {
				closeList()
				out.WriteString("<ol>\n")
				listOpen = "ol"
			}
			out.WriteString("<li>" + renderInline(orderedItem(trimmed)) + "</li>\n")
		default:
			closeList()
			paragraph = append(paragraph, trimmed)
		}
	}
	flushParagraph()
	closeList()
	return out.String()
}

// orderedItem returns the text of a "1. item" line, or "" if the line is
// not an ordered list item.
func orderedItem(line string) string {
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c >= '0' && c <= '9' {
			continue
		}
		if c == '.' && i > 0 && i+1 < len(line) && line[i+1] == ' ' {
			return strings.TrimSpace(line[i+2:])
		}
		return ""
	}
	return ""
}

func renderInline(text string) string {
	escaped := html.EscapeString(text)
	escaped = boldPattern.ReplaceAllString(escaped, "<strong>$1</strong>")
	escaped = italicPattern.ReplaceAllString(escaped, "<em>$1</em>")
	escaped = codePattern.ReplaceAllString(escaped, "<code>$1</code>")
	return escaped
}
