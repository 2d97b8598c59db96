package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/populous/internal/generator"
)

var generatorsCmd = &cobra.Command{
	Use:   "generators",
	Short: "List the generator catalog",
	Long:  `Lists every registered generator name with a one-line description.`,
	RunE:  runGenerators,
}

func init() {
	rootCmd.AddCommand(generatorsCmd)
}

func runGenerators(cmd *cobra.Command, args []string) error {
	names := generator.Names()
	sort.Strings(names)

	for _, name := range names {
		doc, _ := generator.Describe(name)
		fmt.Fprintf(outputWriter, "%-20s %s\n", name, doc)
	}
	return nil
}
