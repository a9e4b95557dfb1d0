package convert

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	gmtext "github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
)

var errNotUTF8 = errors.New("payload is not valid UTF-8")

// text adapts a string transform into a Converter. The payload must be valid
// UTF-8; the result is returned as UTF-8 bytes.
func text(fn func(string) (string, error)) Converter {
	return func(ctx context.Context, _ string, data []byte) ([]byte, error) {
		if !utf8.Valid(data) {
			return nil, errNotUTF8
		}
		out, err := fn(string(data))
		if err != nil {
			return nil, err
		}
		return []byte(out), nil
	}
}

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown
)

// markdownParser returns the shared GFM converter. goldmark instances are
// safe for concurrent use once configured.
func markdownParser() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdown = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return markdown
}

func markdownToHTML(input string) (string, error) {
	var buf bytes.Buffer
	if err := markdownParser().Convert([]byte(input), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// markdownToText strips markup and keeps the readable text. Blocks are
// separated by a blank line; code blocks keep their lines verbatim.
func markdownToText(input string) (string, error) {
	source := []byte(input)
	doc := markdownParser().Parser().Parse(gmtext.NewReader(source))

	var sb strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch {
			case n.Type() != ast.TypeBlock:
			case n.Kind() == ast.KindDocument, n.Kind() == ast.KindListItem:
			case n.Kind() == ast.KindTextBlock:
				sb.WriteString("\n")
			default:
				sb.WriteString("\n\n")
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			sb.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				sb.WriteString("\n")
			}
		case *ast.String:
			sb.Write(node.Value)
		case *ast.AutoLink:
			sb.Write(node.URL(source))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return tidyText(sb.String()), nil
}

// skippedElements carry no readable text.
var skippedElements = map[string]bool{
	"head":     true,
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
}

// blockElements end a line of text.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"pre": true, "blockquote": true, "section": true, "article": true,
	"ul": true, "ol": true, "table": true, "hr": true,
}

func htmlToText(input string) (string, error) {
	doc, err := html.Parse(strings.NewReader(input))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	var walk func(n *html.Node, pre bool)
	walk = func(n *html.Node, pre bool) {
		switch n.Type {
		case html.TextNode:
			if pre {
				sb.WriteString(n.Data)
				return
			}
			if words := strings.Fields(n.Data); len(words) > 0 {
				if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") && startsWithSpace(n.Data) {
					sb.WriteString(" ")
				}
				sb.WriteString(strings.Join(words, " "))
				if endsWithSpace(n.Data) {
					sb.WriteString(" ")
				}
			}
			return
		case html.ElementNode:
			if skippedElements[n.Data] {
				return
			}
			if n.Data == "pre" {
				pre = true
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, pre)
		}

		if n.Type == html.ElementNode && blockElements[n.Data] {
			sb.WriteString("\n")
		}
	}
	walk(doc, false)

	return tidyText(sb.String()), nil
}

func startsWithSpace(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

func endsWithSpace(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

var (
	trailingSpace = regexp.MustCompile(`[ \t]+\n`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

// tidyText trims trailing spaces on each line, collapses runs of blank
// lines and ends the text with a single newline.
func tidyText(s string) string {
	s = trailingSpace.ReplaceAllString(s, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return s + "\n"
}
