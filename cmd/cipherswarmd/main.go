// Command cipherswarmd runs the CipherSwarm scheduling core: task
// assignment, preemption, crack and status ingestion, ETA calculation,
// and system health checks over a BoltDB-backed store.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
