package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dbsmedya/populous/internal/blueprint"
	"github.com/dbsmedya/populous/internal/blueprintfile"
	"github.com/dbsmedya/populous/internal/plan"
)

var planCmd = &cobra.Command{
	Use:   "plan FILES...",
	Short: "Show the computed item order and row-count estimates",
	Long: `Plan loads one or more blueprint files and displays, without
connecting to a database, the parent-before-child generation order derived
from the item graph and a closed-form row-count estimate for each item.

Example:
  populous plan blueprints/users.yaml blueprints/orders.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	bp := blueprint.New(ctx, nil, 0, zap.NewNop())
	if err := blueprintfile.Load(ctx, bp, args); err != nil {
		return fmt.Errorf("failed to load blueprint files: %w", err)
	}

	if err := bp.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	roots, err := plan.Build(bp)
	if err != nil {
		return fmt.Errorf("failed to compute plan: %w", err)
	}

	fmt.Fprint(outputWriter, plan.Render(roots))
	return nil
}
