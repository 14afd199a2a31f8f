// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/internal/engine"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// --- outcome command ---

var outcomeCmd = &cobra.Command{
	Use:   "outcome",
	Short: "Report what a client did with an evidence set",
	Long: `Outcome folds an interaction summary into the client's context: recent
topics, risk tolerance, and per-source preference weights.

The summary is read from a YAML file (--summary), or derived from a saved
query file (--query-file) as if the client engaged with every item.`,
	RunE: runOutcome,
}

func init() {
	outcomeCmd.Flags().String("client", "", "client id (required)")
	outcomeCmd.Flags().String("summary", "", "interaction summary YAML file")
	outcomeCmd.Flags().String("query-file", "", "saved query file to derive the summary from")
	outcomeCmd.MarkFlagRequired("client")

	rootCmd.AddCommand(outcomeCmd)
}

func runOutcome(cmd *cobra.Command, args []string) error {
	clientID, _ := cmd.Flags().GetString("client")
	summaryPath, _ := cmd.Flags().GetString("summary")
	queryPath, _ := cmd.Flags().GetString("query-file")

	var s types.InteractionSummary
	switch {
	case summaryPath != "" && queryPath != "":
		return fmt.Errorf("use either --summary or --query-file, not both")
	case summaryPath != "":
		data, err := os.ReadFile(summaryPath)
		if err != nil {
			return fmt.Errorf("reading summary: %w", err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("parsing summary: %w", err)
		}
	case queryPath != "":
		qf, err := engine.ReadQueryFile(queryPath)
		if err != nil {
			return err
		}
		s = engine.SummaryFor(qf.Query, qf.Evidence, time.Now())
	default:
		return fmt.Errorf("provide --summary or --query-file")
	}

	rt, _, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.ReportOutcome(cmd.Context(), clientID, s); err != nil {
		return err
	}
	fmt.Printf("Recorded outcome for %s: %d topic(s), %d engagement(s)\n",
		clientID, len(s.Topics), len(s.Engagements))
	return nil
}

// --- context command ---

var contextCmd = &cobra.Command{
	Use:   "context <client-id>",
	Short: "Show a client's personalization context",
	Args:  cobra.ExactArgs(1),
	RunE:  runContext,
}

func init() {
	contextCmd.Flags().Bool("json", false, "output the context as JSON")

	rootCmd.AddCommand(contextCmd)
}

func runContext(cmd *cobra.Command, args []string) error {
	rt, _, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	cc, err := rt.ClientContext(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cc)
	}

	fmt.Printf("Client:        %s\n", cc.ClientID)
	if cc.RiskTolerance != "" {
		fmt.Printf("Risk:          %s\n", cc.RiskTolerance)
	}
	fmt.Printf("Interactions:  %d\n", cc.Interactions)
	if !cc.UpdatedAt.IsZero() {
		fmt.Printf("Updated:       %s\n", cc.UpdatedAt.Format(time.RFC3339))
	}
	fmt.Println("Weights:")
	for _, k := range types.AllSourceKinds() {
		fmt.Printf("  %-20s %.3f\n", k, cc.Weight(k))
	}
	if len(cc.RecentTopics) > 0 {
		fmt.Println("Recent topics:")
		for _, t := range cc.RecentTopics {
			fmt.Printf("  %-20s %s\n", t.Name, t.SeenAt.Format("2006-01-02"))
		}
	}
	return nil
}
