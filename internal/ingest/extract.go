package ingest

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	pdf "github.com/dslipak/pdf"
	"golang.org/x/net/html"
)

// Supported reports whether path has an extension the importer can read.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".txt", ".html", ".htm", ".pdf":
		return true
	default:
		return false
	}
}

// ExtractFile returns the plain text of a .md, .txt, .html or .pdf file.
func ExtractFile(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return extractPDF(path)
	case ".html", ".htm":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return ExtractHTML(string(data)), nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return SanitizeUTF8(strings.TrimSpace(string(data))), nil
	}
}

func extractPDF(path string) (string, error) {
	r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	buf := bytes.NewBuffer(nil)
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", err
	}
	return SanitizeUTF8(strings.TrimSpace(buf.String())), nil
}

// ExtractHTML returns visible text, one text node per line. Script, style and
// navigation chrome are skipped.
func ExtractHTML(htmlStr string) string {
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return ""
	}

	var b strings.Builder
	var walk func(*html.Node, bool)
	walk = func(n *html.Node, skip bool) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "nav", "footer":
				skip = true
			}
		}
		if n.Type == html.TextNode && !skip {
			if t := strings.TrimSpace(n.Data); t != "" {
				b.WriteString(t)
				b.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, skip)
		}
	}
	walk(doc, false)

	var kept []string
	for _, l := range strings.Split(b.String(), "\n") {
		if l = strings.TrimSpace(l); len(l) > 1 {
			kept = append(kept, l)
		}
	}
	return SanitizeUTF8(strings.Join(kept, "\n"))
}

// ExtractLinks returns same-host page links found in htmlStr, resolved
// against base, without fragments or query strings, de-duplicated.
func ExtractLinks(htmlStr string, base *url.URL) []string {
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, a := range n.Attr {
				if a.Key != "href" {
					continue
				}
				if link, ok := resolveLink(a.Val, base); ok && !seen[link] {
					seen[link] = true
					out = append(out, link)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func resolveLink(href string, base *url.URL) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:") {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	u = base.ResolveReference(u)
	if u.Host != base.Host {
		return "", false
	}
	switch strings.ToLower(filepath.Ext(u.Path)) {
	case ".css", ".js", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".zip":
		return "", false
	}
	return u.Scheme + "://" + u.Host + u.Path, true
}

// SanitizeUTF8 drops invalid byte sequences, which Postgres rejects in text
// columns.
func SanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			s = s[1:]
			continue
		}
		b.WriteRune(r)
		s = s[size:]
	}
	return b.String()
}
