// Package logx is flux's structured logging: a thin Logger over zerolog with
// typed fields for the scheduler's vocabulary (component, job, due-time,
// cutoff, handler duration).
//
// Console lines carry a short timestamp and file:line caller; the log file
// gets JSON. A Service can swap level and sinks on config reload without
// components re-fetching their loggers.
package logx
