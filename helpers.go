package newsagg

import (
	"encoding/json"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/tailscale/hujson"
)

const (
	fakeUserAgent = `Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:128.0) Gecko/20100101 Firefox/128.0`

	maxUpstreamBodyLength = 512 // max length of upstream error bodies kept in errors
)

// StandardizeJSON standardizes given JSON (JWCC) bytes.
func StandardizeJSON(b []byte) ([]byte, error) {
	ast, err := hujson.Parse(b)
	if err != nil {
		return b, err
	}
	ast.Standardize()

	return ast.Pack(), nil
}

// print verbose message
func v(verbose bool, format string, v ...any) {
	if verbose {
		log.Printf("[verbose] %s", fmt.Sprintf(format, v...))
	}
}

// convert given (possibly HTML) text into plain text
func plainText(text string) string {
	if !strings.ContainsAny(text, "<&") {
		return strings.Join(strings.Fields(text), " ")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return strings.Join(strings.Fields(text), " ")
	}
	_ = doc.Find("script").Remove()
	_ = doc.Find("style").Remove()

	return strings.Join(strings.Fields(doc.Text()), " ")
}

// truncate given string to `n` runes
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// parse given upstream timestamp, returning zero time on failure
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, time.RFC1123Z, time.RFC1123} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// return copies of given articles with ids, keyword and cache time stamped
func stampArticles(articles []Article, keyword string, cachedAt time.Time) []Article {
	stamped := slices.Clone(articles)
	for i := range stamped {
		stamped[i].ID = uuid.NewString()
		stamped[i].Keyword = keyword
		stamped[i].CachedAt = cachedAt
	}
	return stamped
}

// return the window of `size` articles starting at `offset`
func window(articles []Article, offset, size int) []Article {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(articles) || size <= 0 {
		return []Article{}
	}
	return slices.Clone(articles[offset:min(offset+size, len(articles))])
}

// Prettify prettifies given thing in JSON format.
func Prettify(v any) string {
	if bytes, err := json.MarshalIndent(v, "", "  "); err == nil {
		return string(bytes)
	}
	return fmt.Sprintf("%+v", v)
}
