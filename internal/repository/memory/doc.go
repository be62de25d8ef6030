// Package memory provides in-memory repositories for local development
// without PostgreSQL and for service tests. Semantics mirror the postgres
// package: counters only move through the increment methods, status
// advances are compare-and-swap, and the blocklist upserts.
package memory
