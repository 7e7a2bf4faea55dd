// Package main provides the Strata command-line interface.
package main

import (
	"os"

	"github.com/millbrook-data/strata/internal/cli"

	// Register warehouse adapters.
	_ "github.com/millbrook-data/strata/pkg/adapters/duckdb"
	_ "github.com/millbrook-data/strata/pkg/adapters/postgres"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
