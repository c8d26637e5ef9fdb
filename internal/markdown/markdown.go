// Package markdown renders user-authored notice, post and report bodies to
// sanitised HTML.
package markdown

import (
	"bytes"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	once      sync.Once
	md        goldmark.Markdown
	ugc       *bluemonday.Policy
	plainText *bluemonday.Policy
)

func setup() {
	once.Do(func() {
		md = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		)
		ugc = bluemonday.UGCPolicy()
		ugc.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code")
		plainText = bluemonday.StrictPolicy()
	})
}

// Render converts markdown source to HTML safe to embed in a page. Raw HTML
// in the source is passed to the sanitiser, which strips scripts, event
// handlers and unsafe URLs.
func Render(source string) (string, error) {
	setup()
	if strings.TrimSpace(source) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return ugc.Sanitize(buf.String()), nil
}

// Excerpt returns up to max runes of the rendered text with markup removed,
// for list views and notifications.
func Excerpt(source string, max int) string {
	setup()
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		buf.Reset()
		buf.WriteString(source)
	}
	text := strings.Join(strings.Fields(plainText.Sanitize(buf.String())), " ")
	text = unescape.Replace(text)
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:max])) + "…"
}

var unescape = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&#34;", `"`, "&#39;", "'", "&quot;", `"`)
