// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/evidence-engine/internal/store"
)

// --- seed command ---

var seedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Load companies, fundamentals, market data, and documents into the store",
	Long: `Seed reads a YAML seed file and upserts its companies, fundamentals,
daily market data, and documents into the SQLite store. Running it twice
with the same file leaves the store unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	summary, err := st.IngestFile(cmd.Context(), args[0], os.Stdout)
	if err != nil {
		return err
	}
	if summary.Skipped > 0 {
		return fmt.Errorf("%d seed row(s) skipped", summary.Skipped)
	}
	return nil
}

// --- stats command ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show row counts per table and documents per collection",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats(cmd.Context())
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Printf("Database:         %s\n", st.Path())
	fmt.Printf("Companies:        %d\n", stats.Companies)
	fmt.Printf("Fundamentals:     %d\n", stats.Fundamentals)
	fmt.Printf("Price bars:       %d\n", stats.PriceBars)
	fmt.Printf("Documents:        %d\n", stats.Documents)
	names := make([]string, 0, len(stats.Collections))
	for name := range stats.Collections {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-22s %d\n", name, stats.Collections[name])
	}
	fmt.Printf("Client contexts:  %d\n", stats.ClientContexts)
	fmt.Printf("Audit rows:       %d\n", stats.AuditRows)
	return nil
}

// --- audit command ---

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List recent requests from the audit log",
	RunE:  runAudit,
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	clientID, _ := cmd.Flags().GetString("client")
	limit, _ := cmd.Flags().GetInt("limit")
	entries, err := st.RecentAudit(cmd.Context(), clientID, limit)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No requests recorded.")
		return nil
	}
	fmt.Fprintf(os.Stdout, "%-20s  %-36s  %-10s  %-5s  %-9s  %s\n",
		"Time", "Query", "Client", "Items", "Latency", "Failed")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))
	for _, e := range entries {
		failed := joinKinds(e.SourcesFailed)
		if e.Error != "" {
			failed = e.Error
		}
		fmt.Fprintf(os.Stdout, "%-20s  %-36s  %-10s  %-5d  %7.1fms  %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.QueryID, e.ClientID, e.Items, e.LatencyMS, failed)
	}
	return nil
}

func init() {
	statsCmd.Flags().Bool("json", false, "output stats as JSON")

	auditCmd.Flags().String("client", "", "only show requests of this client")
	auditCmd.Flags().Int("limit", 20, "maximum rows to show")
	auditCmd.Flags().Bool("json", false, "output rows as JSON")

	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(auditCmd)
}
