// Command charges fits and compares regression models of insurance charges
// on age and smoking status, and keeps a history of runs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "charges: %v\n", err)
		stop()
		os.Exit(1)
	}
}
