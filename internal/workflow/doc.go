// Package workflow owns pipeline coordination: the worker pool, per-artifact
// heartbeats, stale recovery, and the queue reconciliation sweep. Stage
// handlers are injected so the pool knows nothing about what a stage does,
// only that it either succeeds, fails with a classified error, or is
// cancelled by context.
package workflow
