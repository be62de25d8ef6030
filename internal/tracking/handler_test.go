package tracking

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/repository/memory"
	"github.com/ignite/outreach-engine/internal/service/tracking"
)

type fakeUnsubscriber struct {
	calls []string
	err   error
}

func (f *fakeUnsubscriber) Unsubscribe(_ context.Context, email, source string) error {
	f.calls = append(f.calls, email+"|"+source)
	return f.err
}

type fixture struct {
	router    chi.Router
	signer    *tracking.Instrumenter
	campaigns *memory.CampaignRepo
	events    *memory.EventRepo
	unsub     *fakeUnsubscriber
	campaign  *domain.Campaign
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		campaigns: memory.NewCampaignRepo(),
		events:    memory.NewEventRepo(),
		unsub:     &fakeUnsubscriber{},
	}
	f.signer = tracking.NewInstrumenter("https://t.example.com", "cal.com", "test-signing-key")
	svc := tracking.NewService(f.campaigns, f.events, f.signer)
	f.campaign = &domain.Campaign{RecipientEmail: "jane@acme.io", Subject: "Quick idea", Status: domain.StatusSent}
	require.NoError(t, f.campaigns.Create(context.Background(), f.campaign))

	f.router = chi.NewRouter()
	NewHandler(NewApplier(svc, nil), f.unsub, f.signer).Mount(f.router)
	return f
}

func (f *fixture) do(method, target string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; Mobile)")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// path strips the origin from a signed tracking URL.
func path(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.RequestURI()
}

func (f *fixture) reload(t *testing.T) *domain.Campaign {
	t.Helper()
	c, err := f.campaigns.Get(context.Background(), f.campaign.ID)
	require.NoError(t, err)
	return c
}

func TestHandleOpen(t *testing.T) {
	f := newFixture(t)

	pixel := path(t, f.signer.PixelURL(f.campaign.ID))
	rec := f.do(http.MethodGet, pixel, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.Equal(t, tracking.Pixel, rec.Body.Bytes())

	f.do(http.MethodGet, pixel, "")
	c := f.reload(t)
	assert.Equal(t, 2, c.OpenCount)
	assert.NotNil(t, c.OpenedAt)

	events, err := f.events.ListByCampaign(context.Background(), f.campaign.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "mobile", events[0].Metadata["device"])
}

func TestHandleOpen_UnknownCampaignStillServesPixel(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, path(t, f.signer.PixelURL("does-not-exist")), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tracking.Pixel, rec.Body.Bytes())
}

func TestHandleOpen_BadSignatureServesPixelWithoutRecording(t *testing.T) {
	f := newFixture(t)
	for _, q := range []string{"", "?s=0000000000000000"} {
		rec := f.do(http.MethodGet, "/t/o/"+f.campaign.ID+".gif"+q, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, tracking.Pixel, rec.Body.Bytes())
	}
	c := f.reload(t)
	assert.Equal(t, 0, c.OpenCount)
	assert.Nil(t, c.OpenedAt)
}

func TestHandleClick(t *testing.T) {
	f := newFixture(t)
	target := "https://acme.io/pricing?a=1"

	rec := f.do(http.MethodGet, path(t, f.signer.ClickURL(f.campaign.ID, target)), "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, target, rec.Header().Get("Location"))

	c := f.reload(t)
	assert.Equal(t, 1, c.ClickCount)
	assert.Equal(t, domain.StatusSent, c.Status)
}

func TestHandleClick_SchedulingLinkMakesHotLead(t *testing.T) {
	f := newFixture(t)
	target := "https://cal.com/sam/intro"

	rec := f.do(http.MethodGet, path(t, f.signer.ClickURL(f.campaign.ID, target)), "")
	assert.Equal(t, http.StatusFound, rec.Code)

	c := f.reload(t)
	assert.Equal(t, domain.StatusBooking, c.Status)
	assert.NotNil(t, c.HotLeadAt)
}

func TestHandleClick_BadTarget(t *testing.T) {
	f := newFixture(t)
	for _, q := range []string{"", "?u=" + url.QueryEscape("javascript:alert(1)"), "?u=" + url.QueryEscape("/relative")} {
		rec := f.do(http.MethodGet, "/t/c/"+f.campaign.ID+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
	assert.Equal(t, 0, f.reload(t).ClickCount)
}

func TestHandleClick_BadSignatureIsForbidden(t *testing.T) {
	f := newFixture(t)
	signed, err := url.Parse(f.signer.ClickURL(f.campaign.ID, "https://acme.io/pricing"))
	require.NoError(t, err)
	sig := signed.Query().Get("s")

	for _, q := range []string{
		"?u=" + url.QueryEscape("https://evil.example/phish"),
		"?u=" + url.QueryEscape("https://evil.example/phish") + "&s=" + sig,
		"?u=" + url.QueryEscape("https://acme.io/pricing") + "&s=0000000000000000",
	} {
		rec := f.do(http.MethodGet, "/t/c/"+f.campaign.ID+q, "")
		assert.Equal(t, http.StatusForbidden, rec.Code, q)
		assert.Empty(t, rec.Header().Get("Location"))
	}
	rec := f.do(http.MethodGet, "/t/c/other-campaign?"+signed.RawQuery, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 0, f.reload(t).ClickCount)
}

func TestHandleUnsubscribe(t *testing.T) {
	f := newFixture(t)

	link, err := url.Parse(f.signer.UnsubscribeURL("Jane@Acme.io"))
	require.NoError(t, err)
	rec := f.do(http.MethodGet, "/unsubscribe?email="+url.QueryEscape("Jane@Acme.io")+"&s="+link.Query().Get("s"), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsubscribed")

	rec = f.do(http.MethodPost, path(t, f.signer.UnsubscribeURL("jane@acme.io")), "List-Unsubscribe=One-Click")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"unsubscribed":true}`, rec.Body.String())

	assert.Equal(t, []string{"jane@acme.io|link", "jane@acme.io|one_click"}, f.unsub.calls)
}

func TestHandleUnsubscribe_Errors(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/unsubscribe", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/unsubscribe?email=nobody", "").Code)

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/unsubscribe?email=jane@acme.io", "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/unsubscribe", "email=jane@acme.io&s=0000000000000000").Code)
	assert.Empty(t, f.unsub.calls)

	f.unsub.err = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodGet, path(t, f.signer.UnsubscribeURL("jane@acme.io")), "").Code)
}

func TestRealIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	assert.Equal(t, "1.2.3.4", realIP(r))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Real-Ip", "5.6.7.8")
	assert.Equal(t, "5.6.7.8", realIP(r))
}

func TestDetectDevice(t *testing.T) {
	assert.Equal(t, "mobile", detectDevice("Mozilla/5.0 (iPhone; Mobile)"))
	assert.Equal(t, "tablet", detectDevice("Mozilla/5.0 (iPad)"))
	assert.Equal(t, "desktop", detectDevice("Mozilla/5.0 (Macintosh)"))
}
