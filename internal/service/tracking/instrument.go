package tracking

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/ignite/outreach-engine/internal/domain"
)

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>()]+`)

// Instrumenter rewrites outbound bodies. It holds no state besides config
// and is safe for concurrent use.
type Instrumenter struct {
	baseURL          string
	schedulingDomain string
	signingKey       []byte
}

// NewInstrumenter creates an Instrumenter. baseURL is the public origin the
// tracking routes are served on. signingKey signs every pixel, click and
// unsubscribe URL.
func NewInstrumenter(baseURL, schedulingDomain, signingKey string) *Instrumenter {
	return &Instrumenter{
		baseURL:          strings.TrimRight(baseURL, "/"),
		schedulingDomain: strings.ToLower(schedulingDomain),
		signingKey:       []byte(signingKey),
	}
}

// PixelURL is the open-tracking image for a campaign.
func (in *Instrumenter) PixelURL(campaignID string) string {
	return fmt.Sprintf("%s/t/o/%s.gif?s=%s", in.baseURL, campaignID, in.sign("o|"+campaignID))
}

// ClickURL wraps target in the click redirect for a campaign.
func (in *Instrumenter) ClickURL(campaignID, target string) string {
	return fmt.Sprintf("%s/t/c/%s?u=%s&s=%s", in.baseURL, campaignID,
		url.QueryEscape(target), in.sign("c|"+campaignID+"|"+target))
}

// UnsubscribeURL is the one-click unsubscribe link for a recipient.
func (in *Instrumenter) UnsubscribeURL(email string) string {
	email = domain.NormalizeEmail(email)
	return fmt.Sprintf("%s/unsubscribe?email=%s&s=%s", in.baseURL, url.QueryEscape(email), in.sign("u|"+email))
}

// VerifyOpen checks the signature carried by a pixel URL.
func (in *Instrumenter) VerifyOpen(campaignID, sig string) bool {
	return in.verify("o|"+campaignID, sig)
}

// VerifyClick checks the signature carried by a click URL. target is the raw
// u query value.
func (in *Instrumenter) VerifyClick(campaignID, target, sig string) bool {
	return in.verify("c|"+campaignID+"|"+target, sig)
}

// VerifyUnsubscribe checks the signature carried by an unsubscribe URL.
func (in *Instrumenter) VerifyUnsubscribe(email, sig string) bool {
	return in.verify("u|"+domain.NormalizeEmail(email), sig)
}

func (in *Instrumenter) sign(data string) string {
	h := hmac.New(sha256.New, in.signingKey)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (in *Instrumenter) verify(data, sig string) bool {
	return sig != "" && hmac.Equal([]byte(in.sign(data)), []byte(sig))
}

// Instrument rewrites links in an HTML body and appends the open pixel.
// Running it twice yields the same output.
func (in *Instrumenter) Instrument(body, campaignID string) string {
	return in.addPixel(in.rewrite(body, campaignID, true), campaignID)
}

// RewriteLinks routes every absolute URL in a plain-text body through the
// click redirect, except tracker URLs and scheduling-domain URLs.
func (in *Instrumenter) RewriteLinks(body, campaignID string) string {
	return in.rewrite(body, campaignID, false)
}

// rewrite does the link substitution. Inside HTML the matched URL is entity
// decoded before wrapping and the wrapped URL is escaped back.
func (in *Instrumenter) rewrite(body, campaignID string, isHTML bool) string {
	return urlPattern.ReplaceAllStringFunc(body, func(match string) string {
		// Sentence punctuation after a bare URL is not part of it.
		raw := strings.TrimRight(match, ".,;:!?")
		tail := match[len(raw):]
		if in.skip(raw) {
			return match
		}
		if !isHTML {
			return in.ClickURL(campaignID, raw) + tail
		}
		return html.EscapeString(in.ClickURL(campaignID, html.UnescapeString(raw))) + tail
	})
}

func (in *Instrumenter) skip(raw string) bool {
	if in.baseURL != "" && strings.HasPrefix(raw, in.baseURL) {
		return true
	}
	if strings.Contains(raw, "/t/c/") || strings.Contains(raw, "/t/o/") {
		return true
	}
	return in.IsSchedulingURL(raw)
}

// IsSchedulingURL reports whether raw points at the scheduling domain or one
// of its subdomains.
func (in *Instrumenter) IsSchedulingURL(raw string) bool {
	if in.schedulingDomain == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.Contains(strings.ToLower(raw), in.schedulingDomain)
	}
	host := strings.ToLower(u.Hostname())
	return host == in.schedulingDomain || strings.HasSuffix(host, "."+in.schedulingDomain)
}

func (in *Instrumenter) addPixel(body, campaignID string) string {
	src := in.PixelURL(campaignID)
	if strings.Contains(body, src) {
		return body
	}
	pixel := fmt.Sprintf(`<img src="%s" width="1" height="1" alt="" style="display:none" />`, src)
	lower := strings.ToLower(body)
	if i := strings.LastIndex(lower, "</body>"); i >= 0 {
		return body[:i] + pixel + body[i:]
	}
	return body + pixel
}
