// Package engine wires the outreach services into one explicit instance.
//
// An Engine owns the follow-up sequencer lifecycle, the cached active
// sequence and the cumulative counters exposed by the control surface.
// Nothing here is package-global; tests build as many engines as they
// need.
package engine
