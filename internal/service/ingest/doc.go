// Package ingest implements the Event Ingestor: it authenticates provider
// webhooks and turns lifecycle events into campaign state transitions.
//
// Events are correlated to a campaign by recipient address. When several
// campaigns exist for one address the most recently created one wins.
package ingest
