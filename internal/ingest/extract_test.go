package ingest

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const guidancePage = `<html><head><title>CDD</title><style>p{}</style><script>var x=1;</script></head>
<body>
<nav><a href="/guidance/">Home</a></nav>
<h1>Customer due diligence</h1>
<p>Firms must verify the identity of clients.</p>
<p>x</p>
<a href="/guidance/pep.html#top">PEPs</a>
<a href="https://other.example.com/page">External</a>
<a href="/static/site.css">css</a>
<a href="mailto:mlro@example.org">MLRO</a>
<a href="#section">anchor</a>
<a href="sanctions">Sanctions</a>
</body></html>`

func TestExtractHTML(t *testing.T) {
	text := ExtractHTML(guidancePage)

	assert.Contains(t, text, "Customer due diligence\nFirms must verify the identity of clients.")
	assert.NotContains(t, text, "var x")
	assert.NotContains(t, text, "Home")
	assert.NotContains(t, text, "\nx\n")
}

func TestExtractLinks(t *testing.T) {
	base, _ := url.Parse("https://example.org/guidance/")
	links := ExtractLinks(guidancePage, base)

	assert.Equal(t, []string{
		"https://example.org/guidance/",
		"https://example.org/guidance/pep.html",
		"https://example.org/guidance/sanctions",
	}, links)
}

func TestSanitizeUTF8(t *testing.T) {
	assert.Equal(t, "ok", SanitizeUTF8("ok"))
	assert.Equal(t, "ab", SanitizeUTF8("a\xffb"))
}

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	md := filepath.Join(dir, "policy.md")
	require.NoError(t, os.WriteFile(md, []byte("  # Policy\nTraining is annual.\n"), 0o600))

	text, err := ExtractFile(md)
	require.NoError(t, err)
	assert.Equal(t, "# Policy\nTraining is annual.", text)

	assert.True(t, Supported("a.PDF"))
	assert.False(t, Supported("a.docx"))

	_, err = ExtractFile(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}
