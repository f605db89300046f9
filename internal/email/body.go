package email

import (
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"google.golang.org/api/gmail/v1"
)

// DecodeBody returns the text of a message payload. It prefers a top-level
// body, then the first text/plain part, then the first text/html part
// converted to text. Nested multiparts are searched depth first. A payload
// with none of these decodes to "".
func DecodeBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}

	if payload.Body != nil && payload.Body.Data != "" {
		if text, err := decodeData(payload.Body.Data); err == nil {
			if payload.MimeType == "text/html" {
				return HTMLToText(text)
			}
			return text
		}
	}

	if part := findPart(payload.Parts, "text/plain"); part != nil {
		if text, err := decodeData(part.Body.Data); err == nil {
			return text
		}
	}

	if part := findPart(payload.Parts, "text/html"); part != nil {
		if text, err := decodeData(part.Body.Data); err == nil {
			return HTMLToText(text)
		}
	}

	return ""
}

func findPart(parts []*gmail.MessagePart, mimeType string) *gmail.MessagePart {
	for _, part := range parts {
		if part == nil {
			continue
		}
		if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
			return part
		}
		if found := findPart(part.Parts, mimeType); found != nil {
			return found
		}
	}
	return nil
}

var encodings = []*base64.Encoding{
	base64.URLEncoding,
	base64.RawURLEncoding,
	base64.StdEncoding,
	base64.RawStdEncoding,
}

// decodeData decodes Gmail body data, which is base64url but not always padded
func decodeData(data string) (string, error) {
	data = strings.TrimSpace(data)
	for _, enc := range encodings {
		if decoded, err := enc.DecodeString(data); err == nil {
			return string(decoded), nil
		}
	}
	return "", errors.New("body data is not valid base64")
}

var skipElements = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Title:    true,
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Tr: true, atom.Table: true, atom.Li: true,
	atom.Ul: true, atom.Ol: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true, atom.Blockquote: true, atom.Pre: true,
	atom.Hr: true, atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
}

// HTMLToText renders the visible text of an HTML document. Links become
// their text, block elements end a line, cells are separated by a space and
// nothing is wrapped.
func HTMLToText(s string) string {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.CommentNode, html.DoctypeNode:
			return
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if skipElements[n.DataAtom] {
				return
			}
			switch n.DataAtom {
			case atom.Br:
				b.WriteByte('\n')
				return
			case atom.Img:
				for _, a := range n.Attr {
					if a.Key == "alt" && a.Val != "" {
						b.WriteString(a.Val)
					}
				}
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode {
			switch {
			case blockElements[n.DataAtom]:
				b.WriteByte('\n')
			case n.DataAtom == atom.Td || n.DataAtom == atom.Th:
				b.WriteByte(' ')
			}
		}
	}
	walk(doc)

	return normalizeText(b.String())
}

// normalizeText collapses horizontal whitespace, trims lines and squeezes
// runs of blank lines to one.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.ReplaceAll(s, "\r\n", "\n")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
