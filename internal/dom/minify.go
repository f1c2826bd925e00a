package dom

import (
	"strings"
	"sync"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
)

var (
	minifier *minify.M
	once     sync.Once
)

// getMinifier returns a configured HTML and CSS minifier (singleton)
func getMinifier() *minify.M {
	once.Do(func() {
		minifier = minify.New()
		minifier.Add("text/html", &html.Minifier{KeepDocumentTags: true, KeepEndTags: true, KeepQuotes: true})
		minifier.AddFunc("text/css", css.Minify)
	})
	return minifier
}

// MinifyHTML removes unnecessary whitespace while preserving content.
func MinifyHTML(src string) string {
	if !strings.Contains(src, "<") {
		return strings.Join(strings.Fields(src), " ")
	}
	out, err := getMinifier().String("text/html", src)
	if err != nil {
		// Fall back to the original markup
		return src
	}
	return out
}

// MinifyCSS compacts a stylesheet.
func MinifyCSS(src string) string {
	out, err := getMinifier().String("text/css", src)
	if err != nil {
		return src
	}
	return out
}
