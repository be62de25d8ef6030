// Package postgres implements the engine's repositories on PostgreSQL via
// database/sql and lib/pq. Schema lives in migrations/.
//
// Counters only move through IncrementOpen/IncrementClick/AdvanceFollowup,
// which update in place so concurrent hits never lose an increment.
package postgres
