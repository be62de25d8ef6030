// Package delivery is the single outbound path. Every automated send, from
// the initial message through follow-ups, reply responses and booking
// invitations, runs the same steps: blocklist check, per-campaign send lock,
// tracking instrumentation, provider call with a bounded timeout, then an
// outbound conversation record.
package delivery
