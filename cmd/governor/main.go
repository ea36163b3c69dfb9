package main

import (
	"fmt"
	"os"

	"github.com/ocs-lab/governor/cmd/governor/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "governor: %v\n", err)
		os.Exit(1)
	}
}
