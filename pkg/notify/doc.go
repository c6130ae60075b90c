// Package notify delivers reconciliation notices to the operations team.
//
// The charge worker sends a notice when a job exhausts its retries and when
// a charge was captured but its ledger record could not be written. Both
// cases need a human to reconcile the gateway with the database.
//
// Email is sent through Resend when configured, with the notice rendered
// from markdown to sanitized HTML. Log writes notices to the
// application logger and is the fallback otherwise. Multi combines them.
//
//	var n notify.Notifier = notify.NewLog(log)
//	if cfg.Notify.Enabled() {
//	    email, err := notify.NewEmail(cfg.Notify)
//	    if err != nil {
//	        return err
//	    }
//	    n = notify.Multi{n, email}
//	}
package notify
