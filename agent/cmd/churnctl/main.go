// Command churnctl runs the churn feature derivation over a local file
// without the agent: derive, explore and evaluate.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
