// Package job provides a durable retry queue for fallible external
// operations and a polling worker that drains it.
//
// A job moves through a small state machine:
//
//	pending -> in_progress -> completed
//	                       -> pending (retry scheduled)
//	                       -> failed  (retries exhausted)
//	pending | in_progress  -> cancelled
//
// Completed, failed and cancelled are terminal. Jobs are never deleted.
//
// # Features
//
//   - Postgres store with an atomic claim (conditional UPDATE ... RETURNING)
//   - In-memory store for tests and local runs
//   - Exponential backoff with jitter and an optional cap
//   - Transactional enqueueing (jobs only visible after commit)
//   - Typed task registration with structural typing
//   - Per-call handler timeout and panic recovery
//   - Commit, which stops the worker from abandoning a handler that is past
//     a side effect such as a captured payment
//   - Cron-scheduled recovery of claims abandoned by a crashed worker
//   - Metrics hooks and a health check for readiness probes
//
// # Task Definition
//
// Tasks are structs with Name() and Handle() methods. No interface import
// is needed; the payload type is given explicitly when registering:
//
//	type Charge struct{ gw *gateway.Client }
//
//	func (t *Charge) Name() string { return "charge" }
//
//	func (t *Charge) Handle(ctx context.Context, p ChargePayload) (string, error) {
//	    if p.OrderID == "" {
//	        return "", job.Permanent(errors.New("missing order id"))
//	    }
//	    pay, err := t.gw.Charge(ctx, p.Request())
//	    if err != nil {
//	        return "", err // retried with backoff
//	    }
//	    return pay.ID, nil // stored as the job result
//	}
//
// Errors wrapped with Permanent cancel the job instead of retrying it.
// Inside Handle, FromContext returns the job being processed.
//
// # Setup
//
//	store, err := job.NewPostgres(pool)
//	q, err := job.NewQueue(store,
//	    job.WithBackoff(job.NewBackoff(time.Minute, 6*time.Hour)),
//	    job.WithMetrics(metrics.NewRedis(rdb)),
//	)
//
//	w, err := job.NewWorker(q,
//	    job.WithTask[ChargePayload](&Charge{gw: gw}),
//	    job.WithInterval(30*time.Second),
//	    job.WithTimeout(30*time.Second),
//	)
//
//	r, err := job.NewReaper(q, job.WithClaimTimeout(10*time.Minute))
//
// Worker and Reaper expose StartFunc and Shutdown for lifecycle hooks.
//
// # Enqueueing
//
//	q.Enqueue(ctx, "charge", subscriptionID, payload,
//	    job.WithDelay(time.Hour),
//	    job.WithMaxRetries(3),
//	)
//
//	// Inside a transaction; the job exists only if tx commits.
//	q.EnqueueTx(ctx, tx, "charge", subscriptionID, payload)
//
// # Retries
//
// Each failed attempt increments the retry count. While it stays below the
// job's max retries, the job returns to pending with
//
//	next_retry_at = now + base*2^attempt + jitter[0, base)
//
// Otherwise it becomes failed and the worker's exhausted hook runs.
//
// # Stale Claims
//
// A worker that dies mid-call leaves its job in_progress. The reaper fails
// such jobs once their claim is older than the claim timeout, through the
// same path as a handler error, so retry accounting stays intact. The claim
// timeout must exceed the handler timeout.
//
// # Error Handling
//
//   - [ErrNotFound] - no job with the given id
//   - [ErrAlreadyClaimed] - another worker claimed the job first
//   - [ErrInvalidTransition] - the job's status does not allow the change
//   - [ErrInvalidJobType] - empty job type
//   - [ErrInvalidPayload] - payload cannot be encoded or decoded
//   - [ErrHandlerTimeout] - handler exceeded the per-call timeout
//   - [ErrHandlerPanic] - handler panicked
package job
