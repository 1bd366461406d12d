package conversation

import "regexp"

// urlPattern matches Slack's angle-bracket URL markup, e.g. <https://go.dev>.
// $-_ is a range covering most printable ASCII. '|' is outside it, so Slack's
// labelled <url|label> links are not matched.
var urlPattern = regexp.MustCompile(`<(http[s]?://(?:[a-zA-Z]|[0-9]|[$-_@.&+]|[!*\(\),]|(?:%[0-9a-fA-F][0-9a-fA-F]))+)>`)

// ExtractURLs returns the URLs referenced in text, in order of appearance and
// without the surrounding angle brackets. It returns nil when there are none.
func ExtractURLs(text string) []string {
	matches := urlPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		urls = append(urls, m[1])
	}
	return urls
}
