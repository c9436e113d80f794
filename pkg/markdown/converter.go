package markdown

import (
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

var (
	paragraphRe = regexp.MustCompile(`<p>(.*?)</p>`)
	preCodeRe   = regexp.MustCompile(`<pre><code(?: class="[^"]*")?>(.*?)</code></pre>`)
	anyTagRe    = regexp.MustCompile(`</?([a-zA-Z]+)(?:\s[^>]*)?>`)
	tagNameRe   = regexp.MustCompile(`</?([a-zA-Z]+)`)
	newlinesRe  = regexp.MustCompile(`\n{3,}`)
)

// Tags Telegram's HTML parse mode accepts; everything else is stripped.
var supportedTags = map[string]bool{
	"b": true, "i": true, "u": true, "s": true,
	"code": true, "pre": true, "a": true, "br": true,
}

// ToTelegramHTML converts markdown to Telegram-compatible HTML.
// Used by the operator notifier for startup and shutdown digests.
func ToTelegramHTML(markdown string) string {
	if markdown == "" {
		return ""
	}

	html := string(blackfriday.Run([]byte(markdown), blackfriday.WithExtensions(blackfriday.CommonExtensions)))

	return cleanHTMLForTelegram(html)
}

func cleanHTMLForTelegram(html string) string {
	html = paragraphRe.ReplaceAllString(html, "$1\n")

	replacer := strings.NewReplacer(
		"<strong>", "<b>", "</strong>", "</b>",
		"<em>", "<i>", "</em>", "</i>",
		"<ul>", "", "</ul>", "",
		"<ol>", "", "</ol>", "",
		"<li>", "• ", "</li>", "\n",
	)
	html = replacer.Replace(html)

	html = preCodeRe.ReplaceAllString(html, "<pre>$1</pre>")

	html = anyTagRe.ReplaceAllStringFunc(html, func(match string) string {
		tagMatch := tagNameRe.FindStringSubmatch(match)
		if len(tagMatch) > 1 && supportedTags[strings.ToLower(tagMatch[1])] {
			return match
		}
		return ""
	})

	html = newlinesRe.ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}
