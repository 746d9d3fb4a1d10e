// Package sched runs each transport's duty cycle as an independent,
// cancellable unit of work with its own interval, timeout and failure
// policy.
//
// Each task gets one goroutine, so at most one execution of a task is ever
// in flight; an overrun is skipped, not queued. Consecutive failures delay
// the next run with capped exponential backoff, reset on the next success.
package sched
