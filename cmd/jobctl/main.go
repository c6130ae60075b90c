// Command jobctl inspects and operates the charge-retry queue.
//
//	jobctl list --status failed
//	jobctl show 0b6c1d5e-8f4a-4f47-9d7b-2a7a1c3e9f10
//	jobctl cancel 0b6c1d5e-8f4a-4f47-9d7b-2a7a1c3e9f10 --reason "refunded manually"
//	jobctl enqueue-charge --organizer org_1 --subscription sub_1 --customer cust_1 \
//	    --token token_Ab12Cd34 --amount 49900 --order order_1
//	jobctl validate-token token_Ab12Cd34
//	jobctl sweep
//	jobctl stats
//	jobctl migrate
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	b := newLiveBackend()
	defer b.Close()

	if err := newRootCmd(b).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
