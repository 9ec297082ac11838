// Package projection builds read models from immutable event history.
//
// Read models are intentionally separate from command aggregates so APIs and
// UI layers can query ergonomic views without replaying every event for each
// request. Each projection tracks its own checkpoint in the journal, so a
// failed or reset projection can be rebuilt independently without touching
// the write side or the other projections.
package projection
