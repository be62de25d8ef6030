package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

// DefaultWindowDays is used when a caller passes a non-positive window.
const DefaultWindowDays = 30

// Rates are percentages of the previous stage, formatted "12.5%".
type Rates struct {
	Delivery string `json:"deliveryRate"`
	Open     string `json:"openRate"`
	Click    string `json:"clickRate"`
	Reply    string `json:"replyRate"`
	Booking  string `json:"bookingRate"`
	Bounce   string `json:"bounceRate"`
}

// Funnel is a read-only view over campaigns created inside the window.
// Booked counts campaigns currently in meeting_scheduled.
type Funnel struct {
	WindowDays int       `json:"window_days"`
	Since      time.Time `json:"since"`
	Total      int       `json:"total"`
	Sent       int       `json:"sent"`
	Delivered  int       `json:"delivered"`
	Opened     int       `json:"opened"`
	Clicked    int       `json:"clicked"`
	Replied    int       `json:"replied"`
	Booked     int       `json:"booked"`
	Bounced    int       `json:"bounced"`
	Rates      Rates     `json:"rates"`
}

// Service computes funnels.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates an analytics service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// ComputeFunnel counts each stage over the last windowDays days.
func (s *Service) ComputeFunnel(ctx context.Context, windowDays int) (*Funnel, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	since := s.now().AddDate(0, 0, -windowDays)

	fc, err := s.repo.FunnelCounts(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("funnel counts since %s: %w", since.Format(time.RFC3339), err)
	}
	return BuildFunnel(fc, windowDays, since), nil
}

// BuildFunnel derives rates from raw counts.
func BuildFunnel(fc domain.FunnelCounts, windowDays int, since time.Time) *Funnel {
	return &Funnel{
		WindowDays: windowDays,
		Since:      since,
		Total:      fc.Total,
		Sent:       fc.Sent,
		Delivered:  fc.Delivered,
		Opened:     fc.Opened,
		Clicked:    fc.Clicked,
		Replied:    fc.Replied,
		Booked:     fc.Booked,
		Bounced:    fc.Bounced,
		Rates: Rates{
			Delivery: Rate(fc.Delivered, fc.Sent),
			Open:     Rate(fc.Opened, fc.Delivered),
			Click:    Rate(fc.Clicked, fc.Opened),
			Reply:    Rate(fc.Replied, fc.Sent),
			Booking:  Rate(fc.Booked, fc.Replied),
			Bounce:   Rate(fc.Bounced, fc.Sent),
		},
	}
}

// Rate formats n/d as a one-decimal percentage. A zero denominator
// yields "0%".
func Rate(n, d int) string {
	if d == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(n)/float64(d)*100)
}
