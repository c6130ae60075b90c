// Package health serves liveness and readiness probes for the charge worker.
//
// Liveness answers OK as long as the process serves HTTP. Readiness runs
// named checks concurrently (database, Redis, worker loop) and answers 503
// when any of them fails:
//
//	p := health.NewProber(health.Checks{
//	    "postgres": db.Healthcheck(pool),
//	    "redis":    redis.Healthcheck(rdb),
//	    "worker":   job.Healthcheck(worker),
//	}, health.WithLogger(log))
//
//	srv := &http.Server{Addr: ":8081", Handler: health.Router(p)}
//
// Responses are plain text ("OK" / "Service Unavailable") unless JSON is
// requested with ?format=json or Accept: application/json:
//
//	{"status":"unhealthy","checks":{"redis":{"status":"unhealthy","error":"connection refused","latency":"1.2ms"}}}
package health
