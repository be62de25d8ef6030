// Package sequencer drives the timed follow-up sequence.
//
// A sweep lists campaigns that are mid-sequence and not halted, works out
// which step is next from the campaign status, and sends it once the
// incremental wait since the last touch has elapsed. Step delays are
// configured cumulatively from the initial send; IsDue derives the
// per-step wait.
//
// Sweeps are serialized across replicas with a distributed lock, each
// campaign is sent under its own lock, and the status advance is a
// compare-and-swap. Re-running a sweep inside the same due window therefore
// never sends a step twice.
package sequencer
