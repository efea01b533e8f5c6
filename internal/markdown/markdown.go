package markdown

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// Render converts a small markdown subset to HTML: ATX headings up to level
// three, unordered lists, bold, italic, inline links, and paragraphs. All
// source text is HTML-escaped before inline markup is applied, so raw HTML in
// a post body never reaches the page.
func Render(src string) string {
	lines := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")

	var out strings.Builder
	var paragraph []string
	inList := false

	flushParagraph := func() {
		if len(paragraph) == 0 {
			return
		}
		out.WriteString("<p>")
		out.WriteString(renderInline(strings.Join(paragraph, " ")))
		out.WriteString("</p>\n")
		paragraph = paragraph[:0]
	}
	closeList := func() {
		if inList {
			out.WriteString("</ul>\n")
			inList = false
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			flushParagraph()
			closeList()

		case strings.HasPrefix(trimmed, "#"):
			flushParagraph()
			closeList()
			level := 0
			for level < len(trimmed) && trimmed[level] == '#' {
				level++
			}
			if level > 3 || level >= len(trimmed) || trimmed[level] != ' ' {
				paragraph = append(paragraph, trimmed)
				continue
			}
			text := strings.TrimSpace(trimmed[level:])
			out.WriteString(fmt.Sprintf("<h%d>%s</h%d>\n", level, renderInline(text), level))

		case strings.HasPrefix(trimmed, "- "):
			flushParagraph()
			if !inList {
				out.WriteString("<ul>\n")
				inList = true
			}
			out.WriteString("<li>")
			out.WriteString(renderInline(strings.TrimSpace(trimmed[2:])))
			out.WriteString("</li>\n")

		default:
			closeList()
			paragraph = append(paragraph, trimmed)
		}
	}

	flushParagraph()
	closeList()

	return strings.TrimRight(out.String(), "\n")
}

var (
	boldPattern   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicPattern = regexp.MustCompile(`\*([^*]+)\*`)
	linkPattern   = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
)

func renderInline(text string) string {
	escaped := html.EscapeString(text)
	escaped = linkPattern.ReplaceAllStringFunc(escaped, func(match string) string {
		parts := linkPattern.FindStringSubmatch(match)
		if !safeLink(parts[2]) {
			return parts[1]
		}
		return fmt.Sprintf(`<a href="%s">%s</a>`, parts[2], parts[1])
	})
	escaped = boldPattern.ReplaceAllString(escaped, "<strong>$1</strong>")
	escaped = italicPattern.ReplaceAllString(escaped, "<em>$1</em>")
	return escaped
}

func safeLink(href string) bool {
	lower := strings.ToLower(href)
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "/")
}
