// Package tracking implements the Delivery Tracker.
//
// Instrument makes an outbound body self-reporting: it appends an open
// pixel and rewrites absolute links through the click redirect. Links that
// already point at the tracker, and links to the scheduling domain, are left
// alone so the booking flow keeps working. RecordOpen and RecordClick apply
// the resulting hits to the campaign.
package tracking
