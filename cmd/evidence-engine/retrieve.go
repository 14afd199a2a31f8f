// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/evidence-engine/internal/engine"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [question]",
	Short: "Retrieve ranked evidence for a question",
	Long: `Retrieve plans the question into per-entity, per-source sub-queries,
fetches them concurrently under their timeouts, and prints the ranked
evidence set. Entities are resolved from the question text; --entity adds
tickers explicitly.

With --save the query and its evidence are written to a YAML query file that
outcome --query-file can later report on.`,
	RunE: runRetrieve,
}

func init() {
	retrieveCmd.Flags().StringSlice("entity", nil, "target ticker (repeatable)")
	retrieveCmd.Flags().String("client", "", "client id whose context personalizes ranking")
	retrieveCmd.Flags().String("risk", "", "risk profile: conservative, moderate, aggressive")
	retrieveCmd.Flags().String("depth", "standard", "analysis depth: quick, standard, comprehensive")
	retrieveCmd.Flags().String("as-of", "", "point in time to ask about (YYYY-MM-DD or RFC 3339; default now)")
	retrieveCmd.Flags().Duration("timeout", 0, "overall request timeout (default: server.request_timeout)")
	retrieveCmd.Flags().Bool("best-effort", false, "return partial evidence when the timeout fires")
	retrieveCmd.Flags().String("save", "", "write the query and evidence to this YAML file")
	retrieveCmd.Flags().Bool("json", false, "output the evidence set as JSON")

	rootCmd.AddCommand(retrieveCmd)
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	q, err := queryFromFlags(cmd, args)
	if err != nil {
		return err
	}

	rt, cfg, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout == 0 {
		timeout = cfg.Server.RequestTimeout
	}
	ctx := cmd.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	bestEffort, _ := cmd.Flags().GetBool("best-effort")
	var opts []engine.Option
	if bestEffort {
		opts = append(opts, engine.BestEffort())
	}

	set, err := rt.RetrieveEvidence(ctx, q, opts...)
	if err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("save"); path != "" {
		q.ID = set.QueryID
		if err := engine.WriteQueryFile(path, q, cfg.Ranking, bestEffort, set); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved query file %s\n", path)
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(set)
	}
	printEvidence(os.Stdout, set)
	return nil
}

func queryFromFlags(cmd *cobra.Command, args []string) (types.Query, error) {
	entities, _ := cmd.Flags().GetStringSlice("entity")
	clientID, _ := cmd.Flags().GetString("client")
	risk, _ := cmd.Flags().GetString("risk")
	depthFlag, _ := cmd.Flags().GetString("depth")
	asOfFlag, _ := cmd.Flags().GetString("as-of")

	q := types.Query{
		RawText:        strings.Join(args, " "),
		TargetEntities: entities,
		ClientID:       clientID,
		RiskProfile:    risk,
	}
	if strings.TrimSpace(q.RawText) == "" && len(entities) == 0 {
		return q, fmt.Errorf("provide a question or at least one --entity")
	}

	depth, err := types.ParseDepth(depthFlag)
	if err != nil {
		return q, err
	}
	q.Depth = depth

	if asOfFlag != "" {
		asOf, err := parseAsOf(asOfFlag)
		if err != nil {
			return q, err
		}
		q.AsOf = asOf
	}
	return q, nil
}

// parseAsOf accepts a date or an RFC 3339 timestamp. A bare date means the
// end of that day in UTC.
func parseAsOf(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of %q: use YYYY-MM-DD or RFC 3339", s)
	}
	return d.Add(24*time.Hour - time.Second), nil
}

func printEvidence(w io.Writer, set types.EvidenceSet) {
	if len(set.Items) == 0 {
		fmt.Fprintln(w, "No evidence found.")
	} else {
		fmt.Fprintf(w, "%-4s  %-6s  %-18s  %-6s  %-50s  %s\n",
			"Rank", "Score", "Source", "Entity", "Evidence", "Date")
		fmt.Fprintln(w, strings.Repeat("-", 110))
		for _, it := range set.Items {
			text := it.Payload.Text
			if len(text) > 50 {
				text = text[:47] + "..."
			}
			date := "-"
			if !it.Payload.Timestamp.IsZero() {
				date = it.Payload.Timestamp.Format("2006-01-02")
			}
			source := string(it.Kind)
			if len(it.Sources) > 1 {
				source = fmt.Sprintf("%s+%d", source, len(it.Sources)-1)
			}
			fmt.Fprintf(w, "%-4d  %-6.3f  %-18s  %-6s  %-50s  %s\n",
				it.Rank, it.Score, source, it.Entity, text, date)
		}
	}

	fmt.Fprintf(w, "\n%d items  query %s\n", len(set.Items), set.QueryID)
	fmt.Fprintf(w, "consulted: %s\n", joinKinds(set.SourcesConsulted))
	if len(set.SourcesFailed) > 0 {
		fmt.Fprintf(w, "failed:    %s\n", joinKinds(set.SourcesFailed))
		for _, f := range set.Failures {
			fmt.Fprintf(w, "  %s %s: %s\n", f.Kind, f.Entity, f.Reason)
		}
	}
	if set.LowConfidence {
		fmt.Fprintln(w, "warning: low confidence, fewer items than the minimum")
	}
	if set.Partial {
		fmt.Fprintln(w, "warning: partial result, request cancelled before all sources answered")
	}
}

func joinKinds(kinds []types.SourceKind) string {
	if len(kinds) == 0 {
		return "none"
	}
	s := make([]string, len(kinds))
	for i, k := range kinds {
		s[i] = string(k)
	}
	return strings.Join(s, ", ")
}
