package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kitchenai/kitchen/internal/config"
	"github.com/kitchenai/kitchen/internal/provider"
)

var modelsVerbose bool

var modelsCmd = &cobra.Command{
	Use:   "models [provider]",
	Short: "List available models",
	Long: `List the models of the configured providers.

Examples:
  kitchen models              # List all models
  kitchen models anthropic    # List only Anthropic models
  kitchen models --verbose    # Show pricing information`,
	Args: cobra.MaximumNArgs(1),
	RunE: runModels,
}

func init() {
	modelsCmd.Flags().BoolVarP(&modelsVerbose, "verbose", "v", false, "Include metadata like costs")
}

func runModels(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	providerReg, err := provider.InitializeProviders(context.Background(), appConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize providers: %w", err)
	}

	var providerFilter string
	if len(args) > 0 {
		providerFilter = args[0]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if modelsVerbose {
		fmt.Fprintln(w, "PROVIDER\tMODEL\tCONTEXT\tMAX OUTPUT\tINPUT PRICE\tOUTPUT PRICE\t")
	} else {
		fmt.Fprintln(w, "PROVIDER\tMODEL\tCONTEXT\t")
	}

	for _, p := range providerReg.List() {
		if providerFilter != "" && p.ID() != providerFilter {
			continue
		}
		for _, model := range p.Models() {
			if modelsVerbose {
				fmt.Fprintf(w, "%s\t%s\t%dk\t%d\t$%.2f/1M\t$%.2f/1M\t\n",
					p.ID(),
					model.ID,
					model.ContextLength/1000,
					model.MaxOutputTokens,
					model.InputPrice,
					model.OutputPrice,
				)
			} else {
				fmt.Fprintf(w, "%s\t%s\t%dk\t\n", p.ID(), model.ID, model.ContextLength/1000)
			}
		}
	}

	return w.Flush()
}
