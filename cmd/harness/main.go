// Command harness indexes TREC collections and evaluates query sets against
// them with query-likelihood or BM25 ranking and optional Rocchio feedback.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
