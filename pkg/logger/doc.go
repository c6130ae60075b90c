// Package logger builds the process-wide slog logger.
//
// Records are written as JSON (or text with LOG_FORMAT=text) to stdout.
// Context extractors add per-call attributes; the worker registers
// job.LogExtractors so every record logged while a job runs carries
// job_id and job_type:
//
//	log := logger.New(cfg.Log, logger.Extractors(job.LogExtractors()...)...)
//
// When SENTRY_DSN is set, warnings and errors are also forwarded to Sentry
// through sentry-go/slog. Without a DSN, or if Sentry fails to initialize,
// logging continues on stdout only. Register Flush as a shutdown hook so
// buffered events are delivered before exit.
package logger
