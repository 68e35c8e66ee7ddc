package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"HTTPS://Example.COM/Docs/", "https://example.com/Docs"},
		{"https://example.com:443/a", "https://example.com/a"},
		{"http://example.com:80/", "http://example.com/"},
		{"https://example.com/a#section", "https://example.com/a"},
		{"https://example.com/a?utm_source=x&utm_medium=y", "https://example.com/a"},
		{"https://example.com/a?b=2&a=1", "https://example.com/a?a=1&b=2"},
		{"https://example.com", "https://example.com/"},
	}
	for _, tc := range cases {
		got, err := NormalizeURL(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestNormalizeURLDeterministic(t *testing.T) {
	// parameter order must not matter
	a, err := NormalizeURL("https://example.com/p?x=1&y=2&utm_campaign=c")
	require.NoError(t, err)
	b, err := NormalizeURL("https://example.com/p/?y=2&x=1")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestClassifyURL(t *testing.T) {
	assert.Equal(t, KindSitemap, ClassifyURL("https://example.com/sitemap.xml"))
	assert.Equal(t, KindSitemap, ClassifyURL("https://example.com/sitemap-pages.xml"))
	assert.Equal(t, KindText, ClassifyURL("https://example.com/llms.txt"))
	assert.Equal(t, KindText, ClassifyURL("https://example.com/readme.md"))
	assert.Equal(t, KindPage, ClassifyURL("https://example.com/docs/intro"))
	assert.Equal(t, KindPage, ClassifyURL("https://example.com/feed.xml"))
}

func TestSameHost(t *testing.T) {
	assert.True(t, SameHost("https://example.com/a", "https://www.example.com/b"))
	assert.False(t, SameHost("https://example.com/a", "https://other.com/a"))
}

func TestSourceIDFromURL(t *testing.T) {
	id, err := SourceIDFromURL("https://www.example.com/docs")
	require.NoError(t, err)
	assert.Equal(t, "example.com", id)
}
