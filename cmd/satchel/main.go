// Command satchel is the CLI front end for the allocation core: running the
// set builder, allocating sets to users, administrative pool/user
// maintenance, and the long-running server (spec.md §6).
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oriys/satchel/internal/domain"
)

var (
	redisAddr   string
	redisPass   string
	redisDB     int
	pgDSN       string
	configFile  string
	categoryFile string
)

// exitCode maps an error to spec.md §6's process exit codes: 0 success,
// 1 validation error, 2 backend unavailable.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, domain.ErrValidation) {
		return 1
	}
	return 2
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "satchel",
		Short: "satchel - question set allocator",
		Long:  "Builds, pools, and allocates bounded question sets across content categories.",
	}

	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "localhost:6379", "Redis address (Pool Index / Allocation Ledger)")
	rootCmd.PersistentFlags().StringVar(&redisPass, "redis-pass", "", "Redis password")
	rootCmd.PersistentFlags().IntVar(&redisDB, "redis-db", 0, "Redis database")
	rootCmd.PersistentFlags().StringVar(&pgDSN, "postgres-dsn", "", "Postgres DSN (Content Store / Set Catalog)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (optional, flags override)")
	rootCmd.PersistentFlags().StringVar(&categoryFile, "categories", "", "Path to category table file (optional, overrides config)")

	rootCmd.AddCommand(
		buildCmd(),
		allocateCmd(),
		evictUserCmd(),
		drainPoolCmd(),
		serveCmd(),
		categoriesCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the satchel version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("satchel dev")
			return nil
		},
	}
}
