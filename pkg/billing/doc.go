// Package billing turns subscription renewals into charge jobs and
// processes them.
//
// Billing code enqueues a charge with EnqueueCharge (or EnqueueChargeTx to
// tie the job to the transaction that renews the subscription). The charge
// worker runs ChargeHandler, which charges the organizer's saved payment
// method through a Charger and appends the captured payment to the Ledger.
//
//	ledger, _ := billing.NewPostgresLedger(pool)
//	h, _ := billing.NewChargeHandler(gw, ledger, billing.WithNotifier(n))
//
//	err := db.WithTx(ctx, pool, func(tx pgx.Tx) error {
//	    // update the subscription ...
//	    _, err := billing.EnqueueChargeTx(ctx, queue, tx, payload)
//	    return err
//	})
//
// A payment is recorded at most once per job: the ledger ignores a second
// append for the same job id. When the ledger write fails after the charge
// was captured, the job still completes with a ledger_pending result and a
// notice goes to the operations team.
package billing
