package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/oriys/satchel/internal/config"
	"github.com/oriys/satchel/internal/domain"
)

// categoriesCmd manages the category table artifact (spec.md §6's "Category
// table (id -> display name)"), which names a config artifact but not how
// it is populated.
func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage the category table",
	}
	cmd.AddCommand(categoriesListCmd(), categoriesAddCmd())
	return cmd
}

func categoriesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			table, err := config.LoadCategoryTable(cfg.Categories.File)
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrValidation, err)
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDISPLAY NAME")
			for _, c := range table.Categories {
				fmt.Fprintf(tw, "%s\t%s\n", c.ID, c.DisplayName)
			}
			return tw.Flush()
		},
	}
}

func categoriesAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <id> <displayName>",
		Short: "Add a category to the table and save it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, displayName := args[0], args[1]

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			table, err := config.LoadCategoryTable(cfg.Categories.File)
			if err != nil {
				// an absent file is a fresh table, not a fatal error
				table = domain.CategoryTable{}
			}
			if table.Known(id) {
				return fmt.Errorf("%w: category %q already exists", domain.ErrValidation, id)
			}
			table.Categories = append(table.Categories, domain.Category{ID: id, DisplayName: displayName})

			data, err := json.MarshalIndent(table, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(cfg.Categories.File, data, 0o644); err != nil {
				return fmt.Errorf("%w: write category table: %v", domain.ErrPoolUnavailable, err)
			}
			fmt.Printf("added %s (%s)\n", id, displayName)
			return nil
		},
	}
}
