// Package analytics derives the outreach funnel from campaign state and
// archives periodic snapshots of it to S3.
package analytics
