package main

import (
	"os"

	"github.com/soundprediction/casegraph/cmd/casegraph"
)

func main() {
	if err := casegraph.Execute(); err != nil {
		os.Exit(1)
	}
}
