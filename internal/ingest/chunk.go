package ingest

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// MaxChunkLen bounds a single excerpt's content in bytes.
const MaxChunkLen = 2000

// SplitIntoChunks packs whole lines into chunks of at most maxLen bytes.
// Lines longer than maxLen are cut at rune boundaries.
func SplitIntoChunks(content string, maxLen int) []string {
	content = SanitizeUTF8(strings.TrimSpace(content))
	if content == "" {
		return nil
	}
	if maxLen <= 0 {
		maxLen = MaxChunkLen
	}
	if len(content) <= maxLen {
		return []string{content}
	}

	var chunks []string
	var buf strings.Builder

	flush := func() {
		if chunk := strings.TrimSpace(buf.String()); chunk != "" {
			chunks = append(chunks, chunk)
		}
		buf.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		for len(line) > maxLen {
			cut := runeBoundary(line, maxLen)
			flush()
			buf.WriteString(line[:cut])
			flush()
			line = line[cut:]
		}

		if buf.Len()+len(line)+1 > maxLen {
			flush()
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	flush()
	return chunks
}

// runeBoundary returns the largest index <= n that starts a rune.
func runeBoundary(s string, n int) int {
	for n > 0 && n < len(s) && (s[n]&0xC0) == 0x80 {
		n--
	}
	return n
}

// TitleFromPath turns "lsag-guidance_part-6.pdf" into "lsag guidance part 6".
func TitleFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}

// TitleFromURL derives a title from the last path segment.
func TitleFromURL(raw string, base *url.URL) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if strings.TrimSuffix(u.Path, "/") == strings.TrimSuffix(base.Path, "/") {
		return "Overview"
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := strings.SplitN(parts[len(parts)-1], ".", 2)[0]
	return strings.Join(strings.Fields(strings.NewReplacer("-", " ", "_", " ").Replace(last)), " ")
}

// SectionRef labels chunk i (zero-based) of n taken from a document titled title.
func SectionRef(title string, i, n int) string {
	if n <= 1 {
		return title
	}
	return fmt.Sprintf("%s (part %d)", title, i+1)
}
