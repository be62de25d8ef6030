package reply

import (
	"html"
	"net/mail"
	"regexp"
	"strings"
)

var (
	reAngleAddr = regexp.MustCompile(`<([^<>@\s]+@[^<>\s]+)>`)
	reBareAddr  = regexp.MustCompile(`[^\s<>"',;]+@[^\s<>"',;]+`)

	// Quote boundaries. The earliest match in the body wins.
	replyBoundaries = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^[ \t]*On\s[^\n]*(?:\n[^\n]*)?wrote:[ \t]*$`),
		regexp.MustCompile(`(?m)^[ \t]*(?:From|Sent|To|Subject):[ \t]`),
		regexp.MustCompile(`(?m)^[ \t]*-{5,}`),
		regexp.MustCompile(`(?m)^[ \t]*_{5,}`),
		regexp.MustCompile(`(?m)^[ \t]*>`),
	}

	reHTMLBreak      = regexp.MustCompile(`(?i)<br\s*/?>`)
	reHTMLParagraph  = regexp.MustCompile(`(?i)</p\s*>`)
	reHTMLDropBlocks = regexp.MustCompile(`(?is)<(script|style|head)[^>]*>.*?</(script|style|head)\s*>`)
	reHTMLAllTags    = regexp.MustCompile(`<[^>]*>`)
	reManyBlankLines = regexp.MustCompile(`\n{3,}`)
)

// ExtractAddress returns the lower-cased bare address from a sender field
// such as `"Jane Doe" <jane@acme.io>`. Returns "" when no address is found.
func ExtractAddress(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return ""
	}
	if a, err := mail.ParseAddress(from); err == nil {
		return strings.ToLower(a.Address)
	}
	if m := reAngleAddr.FindStringSubmatch(from); m != nil {
		return strings.ToLower(m[1])
	}
	if m := reBareAddr.FindString(from); m != "" {
		return strings.ToLower(m)
	}
	return ""
}

// CleanReply drops quoted and forwarded content. Everything from the
// earliest boundary marker on is discarded and the rest is trimmed.
func CleanReply(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	cut := len(text)
	for _, re := range replyBoundaries {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] < cut {
			cut = loc[0]
		}
	}
	return strings.TrimSpace(text[:cut])
}

// HTMLToText is a conservative tag stripper for replies that arrive
// without a text part.
func HTMLToText(s string) string {
	s = reHTMLDropBlocks.ReplaceAllString(s, "")
	s = reHTMLBreak.ReplaceAllString(s, "\n")
	s = reHTMLParagraph.ReplaceAllString(s, "\n\n")
	s = reHTMLAllTags.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")

	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	s = strings.Join(lines, "\n")
	s = reManyBlankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
