package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/AgentWarhead/Voidspace-sub005/pkg/cli"
	"github.com/AgentWarhead/Voidspace-sub005/pkg/config"
)

var plansFlags struct {
	format string
}

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Show the effective limit plans",
	Long: `Show the limit plans a server started from this configuration
would enforce, after defaults are applied.

Examples:
  # Show plans as text
  meterd plans

  # Show plans as JSON
  meterd plans --format json`,
	RunE: runPlans,
}

func init() {
	rootCmd.AddCommand(plansCmd)

	plansCmd.Flags().StringVarP(&plansFlags.format, "format", "f", "text", "output format (text, json)")
}

// planListing is the serializable view of the effective plans.
type planListing struct {
	Actions  []actionListing  `json:"actions"`
	Features []featureListing `json:"features"`
}

type actionListing struct {
	Action   string `json:"action"`
	Limit    int64  `json:"limit"`
	Window   string `json:"window"`
	Strategy string `json:"strategy"`
}

type featureListing struct {
	Feature            string `json:"feature"`
	DailyLimit         int64  `json:"daily_limit"`
	Monetary           bool   `json:"monetary"`
	EstimatedCostCents int64  `json:"estimated_cost_cents,omitempty"`
}

func runPlans(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", err.Error())
	}

	listing := planListing{}
	for name, action := range cfg.Plans.Actions {
		listing.Actions = append(listing.Actions, actionListing{
			Action:   name,
			Limit:    action.Limit,
			Window:   action.Window.String(),
			Strategy: action.Strategy,
		})
	}
	for name, feature := range cfg.Plans.Features {
		listing.Features = append(listing.Features, featureListing{
			Feature:            name,
			DailyLimit:         feature.DailyLimit,
			Monetary:           feature.Monetary,
			EstimatedCostCents: feature.EstimatedCostCents,
		})
	}
	sort.Slice(listing.Actions, func(i, j int) bool { return listing.Actions[i].Action < listing.Actions[j].Action })
	sort.Slice(listing.Features, func(i, j int) bool { return listing.Features[i].Feature < listing.Features[j].Feature })

	if plansFlags.format == "json" {
		formatter := cli.NewFormatter(cli.FormatJSON)
		return formatter.FormatTo(os.Stdout, listing)
	}

	fmt.Printf("Actions (%d):\n", len(listing.Actions))
	for _, a := range listing.Actions {
		fmt.Printf("  %-30s %d per %s (%s)\n", a.Action, a.Limit, a.Window, a.Strategy)
	}
	fmt.Printf("Features (%d):\n", len(listing.Features))
	for _, f := range listing.Features {
		monetary := ""
		if f.Monetary {
			monetary = fmt.Sprintf(", monetary, est %d cents", f.EstimatedCostCents)
		}
		fmt.Printf("  %-30s %d per day%s\n", f.Feature, f.DailyLimit, monetary)
	}
	return nil
}
