// Package cron runs the periodic maintenance of a chatgate process:
// pruning idle web sessions and re-flushing history after a storage outage.
package cron

import "context"

// Job is a unit of periodic work.
type Job interface {
	Name() string

	// Schedule is a five-field cron expression or a descriptor such as
	// "@every 1m".
	Schedule() string

	// Run must return promptly once ctx is done.
	Run(ctx context.Context) error
}
