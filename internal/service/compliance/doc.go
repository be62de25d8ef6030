// Package compliance implements the Compliance Guard: the blocklist gate
// every outbound send passes through.
//
// Entries arrive from provider bounces, spam complaints, explicit
// unsubscribes and classifier-requested removals. Upserts are keyed by the
// normalized address and the latest reason wins.
package compliance
