package main

import (
	"flag"
	"fmt"
	"os"

	"forex-agent/internal/audit"
)

func main() {
	path := flag.String("ledger", "logs/audit.ndjson", "path to audit ledger file")
	flag.Parse()
	if flag.NArg() > 0 {
		*path = flag.Arg(0)
	}

	result, err := audit.VerifyFile(*path)
	if err != nil && result.Status != audit.VerifyFail {
		fmt.Fprintf(os.Stderr, "verify %s: %v\n", *path, err)
		os.Exit(1)
	}

	fmt.Printf("ledger:  %s\n", *path)
	fmt.Printf("status:  %s\n", result.Status)
	fmt.Printf("events:  %d\n", result.Checked)
	if result.Detail != "" {
		fmt.Printf("detail:  %s\n", result.Detail)
	}

	if result.Status == audit.VerifyFail {
		os.Exit(1)
	}
}
