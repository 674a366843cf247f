// Package storage keeps the dispatch history of the scheduler.
//
// Every dispatched job can be recorded as a RunEntry. History is an audit
// trail only: schedule state is never restored from it.
//
// Drivers:
//   - "file": JSON Lines, dependency free
//   - "sqlite": SQLite database with retention pruning
package storage
