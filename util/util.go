package util

import (
	_ "embed"
	"fmt"
	"html"
	"regexp"
	"strings"
)

//go:embed version.txt
var embeddedVersion string

var (
	urlPattern     = regexp.MustCompile(`https?://[^\s<>"]+`)
	mentionPattern = regexp.MustCompile(`(^|[^\w@/])@(\w{1,15})\b`)
	hashtagPattern = regexp.MustCompile(`(^|[^\w&/])#(\w+)`)
)

func GetVersion() string {
	return strings.TrimSpace(embeddedVersion)
}

func GetNameAndVersion() string {
	return fmt.Sprintf("%s / %s", Name, GetVersion())
}

// TextToHTML turns plain post text into the HTML fragment used as Note
// content: escaped, links made clickable, mentions and hashtags pointing at
// the source network, one paragraph per blank-line separated block.
func TextToHTML(text string, sourceDomain string) string {
	escaped := html.EscapeString(strings.ReplaceAll(text, "\r\n", "\n"))

	escaped = urlPattern.ReplaceAllStringFunc(escaped, func(u string) string {
		display := strings.TrimPrefix(strings.TrimPrefix(u, "https://"), "http://")
		return fmt.Sprintf(`<a href="%s" rel="nofollow noopener noreferrer" target="_blank">%s</a>`, u, display)
	})
	escaped = mentionPattern.ReplaceAllString(escaped,
		fmt.Sprintf(`$1<span class="h-card"><a href="https://%s/$2" class="u-url mention">@<span>$2</span></a></span>`, sourceDomain))
	escaped = hashtagPattern.ReplaceAllString(escaped,
		fmt.Sprintf(`$1<a href="https://%s/hashtag/$2" class="mention hashtag" rel="tag">#<span>$2</span></a>`, sourceDomain))

	var paragraphs []string
	for _, block := range strings.Split(escaped, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		paragraphs = append(paragraphs, "<p>"+strings.ReplaceAll(block, "\n", "<br/>")+"</p>")
	}
	return strings.Join(paragraphs, "")
}
