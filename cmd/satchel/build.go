package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oriys/satchel/internal/builder"
)

func buildCmd() *cobra.Command {
	var (
		category           string
		numSetsPerCategory int
		itemsPerSet        int
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Run the set builder (spec §4.1's build access)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("num-sets") {
				numSetsPerCategory = cfg.Builder.NumSetsPerCategory
			}
			if !cmd.Flags().Changed("items-per-set") {
				itemsPerSet = cfg.Builder.ItemsPerSet
			}

			ctx := context.Background()
			d, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			b := builder.New(d.pg, d.pg, d.pool, d.locker, d.categories)

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")

			if category != "" {
				result, err := b.BuildCategory(ctx, category, numSetsPerCategory, itemsPerSet)
				if err != nil {
					return err
				}
				return enc.Encode(result)
			}

			result, err := b.Build(ctx, numSetsPerCategory, itemsPerSet)
			if err != nil {
				return err
			}
			if len(result.Errors) > 0 {
				for categoryID, buildErr := range result.Errors {
					fmt.Fprintf(os.Stderr, "category %s: %v\n", categoryID, buildErr)
				}
			}
			return enc.Encode(result.Categories)
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "build a single category only (default: all known categories)")
	cmd.Flags().IntVar(&numSetsPerCategory, "num-sets", 0, "sets to produce per category (default: config)")
	cmd.Flags().IntVar(&itemsPerSet, "items-per-set", 0, "items per set (default: config)")
	return cmd
}
