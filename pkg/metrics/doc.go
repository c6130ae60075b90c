// Package metrics provides job.Metrics sinks.
//
// Counters is an in-process implementation with snapshots, used by tests and
// when Redis is not configured. Redis keeps per-job-type counters in hashes
// named metrics:jobs:<type> so several workers aggregate into one place:
//
//	HGETALL metrics:jobs:charge
//	1) "enqueued"  2) "42"  3) "attempted"  4) "57" ...
//
// Sinks never fail the caller; a Redis write error is logged and dropped.
package metrics
