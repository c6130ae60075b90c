package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/trekpay/pkg/billing"
	"github.com/dmitrymomot/trekpay/pkg/job"
	"github.com/dmitrymomot/trekpay/pkg/metrics"
)

var (
	errRedisRequired = errors.New("jobctl: REDIS_URL is not set, counters are only kept in worker memory")
	errTokenInvalid  = errors.New("jobctl: payment token is not valid")
)

func newRootCmd(b backend) *cobra.Command {
	root := &cobra.Command{
		Use:   "jobctl",
		Short: "Inspect and operate the charge-retry queue",
		Long: `jobctl inspects and operates the charge-retry queue.

Configuration is read from the environment (and a .env file when present),
the same way the charge worker reads it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newListCmd(b),
		newShowCmd(b),
		newCancelCmd(b),
		newEnqueueChargeCmd(b),
		newValidateTokenCmd(b),
		newSweepCmd(b),
		newStatsCmd(b),
		newMigrateCmd(b),
		newVersionCmd(b),
	)
	return root
}

func newListCmd(b backend) *cobra.Command {
	var (
		f      job.Filter
		status string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := b.Queue(cmd.Context())
			if err != nil {
				return err
			}
			f.Status = job.Status(status)
			jobs, err := q.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), jobs)
			}
			return writeTable(cmd.OutOrStdout(), jobs)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, in_progress, completed, failed, cancelled)")
	cmd.Flags().StringVar(&f.Type, "type", "", "filter by job type")
	cmd.Flags().StringVar(&f.ReferenceID, "ref", "", "filter by reference id")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum number of jobs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newShowCmd(b backend) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Print one job as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			q, err := b.Queue(cmd.Context())
			if err != nil {
				return err
			}
			j, err := q.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), j)
		},
	}
}

func newCancelCmd(b backend) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a pending or in-progress job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			q, err := b.Queue(cmd.Context())
			if err != nil {
				return err
			}
			j, err := q.Cancel(cmd.Context(), id, reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s (%s %s)\n", j.ID, j.Type, j.ReferenceID)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "cancelled by operator", "reason stored as the last error")
	return cmd
}

func newEnqueueChargeCmd(b backend) *cobra.Command {
	var (
		p          billing.ChargePayload
		delay      time.Duration
		maxRetries int
	)
	cmd := &cobra.Command{
		Use:   "enqueue-charge",
		Short: "Schedule a subscription charge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := b.Queue(cmd.Context())
			if err != nil {
				return err
			}
			j, err := billing.EnqueueCharge(cmd.Context(), q, p, job.WithDelay(delay), job.WithMaxRetries(maxRetries))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s, due %s\n", j.ID, j.NextRetryAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&p.OrganizerID, "organizer", "", "organizer id")
	cmd.Flags().StringVar(&p.SubscriptionID, "subscription", "", "subscription id, used as the job reference")
	cmd.Flags().StringVar(&p.CustomerID, "customer", "", "gateway customer id")
	cmd.Flags().StringVar(&p.PaymentMethodID, "token", "", "saved payment method token")
	cmd.Flags().Int64Var(&p.Amount, "amount", 0, "amount in paise")
	cmd.Flags().StringVar(&p.OrderID, "order", "", "gateway order id")
	cmd.Flags().DurationVar(&delay, "delay", 0, "postpone the first attempt")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "failed attempts tolerated before the job fails (default JOB_MAX_RETRIES)")
	for _, name := range []string{"organizer", "subscription", "customer", "token", "amount", "order"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newValidateTokenCmd(b backend) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-token <token>",
		Short: "Check a stored payment token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := b.Validator(cmd.Context())
			if err != nil {
				return err
			}
			res := v.Validate(cmd.Context(), args[0])
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Valid {
				return fmt.Errorf("%w: %s", errTokenInvalid, res.Reason)
			}
			return nil
		},
	}
}

func newSweepCmd(b backend) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Recover jobs whose claim expired, once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := b.Reaper(cmd.Context())
			if err != nil {
				return err
			}
			n, err := r.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recovered %d job(s)\n", n)
			return nil
		},
	}
}

func newStatsCmd(b backend) *cobra.Command {
	var types []string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print job counters recorded in Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := b.Stats(cmd.Context(), types...)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tENQUEUED\tATTEMPTED\tSUCCEEDED\tFAILED")
			for _, t := range types {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", t,
					snap.Get(t, metrics.Enqueued),
					snap.Get(t, metrics.Attempted),
					snap.Get(t, metrics.Succeeded),
					snap.Get(t, metrics.Failed),
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringSliceVar(&types, "type", []string{billing.JobType}, "job types to report")
	return cmd
}

func newMigrateCmd(b backend) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := b.Migrate(cmd.Context()); err != nil {
				return err
			}
			v, err := b.Version(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", v)
			return nil
		},
	}
}

func newVersionCmd(b backend) *cobra.Command {
	return &cobra.Command{
		Use:   "schema-version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := b.Version(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("jobctl: invalid job id %q: %w", s, err)
	}
	return id, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTable(w io.Writer, jobs []*job.Job) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tREFERENCE\tSTATUS\tRETRIES\tNEXT RETRY\tLAST ERROR")
	for _, j := range jobs {
		next := "-"
		if j.Status == job.StatusPending {
			next = j.NextRetryAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			j.ID, j.Type, j.ReferenceID, j.Status, j.RetryCount, j.MaxRetries, next, truncate(j.LastError, 60))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
