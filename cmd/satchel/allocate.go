package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oriys/satchel/internal/allocator"
	"github.com/oriys/satchel/internal/domain"
)

func allocateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "allocate <userId> <categoryId...>",
		Short: "Allocate the next set for a user across one or more categories",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := args[0]
			categoryIDs := args[1:]

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := context.Background()
			d, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			for _, categoryID := range categoryIDs {
				if !d.categories.Known(categoryID) {
					return fmt.Errorf("%w: unknown category %q", domain.ErrValidation, categoryID)
				}
			}

			alloc := allocator.New(d.pool, d.ledger, cfg.Eviction.Policy())
			result := alloc.AllocateBatch(ctx, userID, categoryIDs)

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}

func evictUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evict-user <userId>",
		Short: "Run the standalone evictUser(u) operation across all of a user's categories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := args[0]
			if userID == "" {
				return fmt.Errorf("%w: userId is required", domain.ErrValidation)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := context.Background()
			d, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			alloc := allocator.New(d.pool, d.ledger, cfg.Eviction.Policy())
			if err := alloc.EvictUser(ctx, userID); err != nil {
				return err
			}
			fmt.Printf("evicted %s\n", userID)
			return nil
		},
	}
}

func drainPoolCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drain-pool <categoryId>",
		Short: "Empty a category's pool administratively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			categoryID := args[0]

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := context.Background()
			d, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			if !d.categories.Known(categoryID) {
				return fmt.Errorf("%w: unknown category %q", domain.ErrValidation, categoryID)
			}
			if err := d.pool.Drop(ctx, categoryID); err != nil {
				return err
			}
			fmt.Printf("drained %s\n", categoryID)
			return nil
		},
	}
}
