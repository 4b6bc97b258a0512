package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-remedy/internal/api"
	"github.com/miradorstack/mirador-remedy/internal/config"
	"github.com/miradorstack/mirador-remedy/internal/history"
	"github.com/miradorstack/mirador-remedy/internal/utils"
)

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var (
		limit   int
		local   bool
		summary time.Duration
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent resolutions",
		Long: `List recent resolutions from a running engine, or read the history
database directly with --local. --summary aggregates attempts per action
over the given window and implies --local.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if local || summary > 0 {
				return localHistory(cmd, opts, limit, summary)
			}
			client, closeConn, err := dial(opts)
			if err != nil {
				return err
			}
			defer closeConn()

			req, err := structpb.NewStruct(map[string]any{"limit": limit})
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd.Context())
			defer cancel()
			resp, err := client.ListResolutions(ctx, req)
			if err != nil {
				return fmt.Errorf("list resolutions: %w", err)
			}
			printResolutions(cmd.OutOrStdout(), list(resp.AsMap(), "resolutions"))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of resolutions to show")
	cmd.Flags().BoolVar(&local, "local", false, "Read the history database instead of calling the engine")
	cmd.Flags().DurationVar(&summary, "summary", 0, "Summarise attempts per action over this window (e.g. 24h)")
	return cmd
}

func localHistory(cmd *cobra.Command, opts *rootOptions, limit int, window time.Duration) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	repository, err := history.OpenAt(cfg.History.Path)
	if err != nil {
		return err
	}
	defer repository.Close()

	out := cmd.OutOrStdout()
	if window > 0 {
		summaries, err := repository.Summarize(cmd.Context(), time.Now().Add(-window))
		if err != nil {
			return fmt.Errorf("summarise history: %w", err)
		}
		printSummaries(out, window, summaries)
		return nil
	}

	recent, err := repository.ListRecent(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}
	// Local rows go through the RPC payload shape so both paths print alike.
	printResolutions(out, list(api.ToProtoResolutions(recent).AsMap(), "resolutions"))
	return nil
}

func printResolutions(out io.Writer, resolutions []map[string]any) {
	if len(resolutions) == 0 {
		fmt.Fprintln(out, "No resolutions recorded.")
		return
	}
	t := newTable(out, "Recent resolutions", "ID", "TARGET", "STARTED", "ACTION", "ATTEMPTS", "DURATION", "STATUS")
	for _, r := range resolutions {
		action := str(r, "action")
		if action == "" {
			action = "-"
		}
		t.row(
			str(r, "id"),
			str(r, "target_id"),
			shortTime(str(r, "started_at")),
			action,
			fmt.Sprintf("%d", int(num(r, "attempts"))),
			millis(num(r, "duration_ms")),
			renderOutcome(str(r, "status")),
		)
	}
	t.flush()
}

func printResolutionDetail(out io.Writer, r map[string]any) {
	fmt.Fprintf(out, "Resolution %s for %s: %s after %d cycle(s), %s\n",
		str(r, "id"), str(r, "target_id"), renderOutcome(str(r, "status")),
		int(num(r, "cycles")), millis(num(r, "duration_ms")))
	baseline := shortFingerprint(str(r, "baseline_fingerprint"))
	fmt.Fprintf(out, "Baseline state: %s\n", baseline)
	t := newTable(out, "Attempts", "CYCLE", "ACTION", "DURATION", "STATE", "ERROR", "RESULT")
	for _, a := range list(r, "trail") {
		result := "failed"
		if flag(a, "succeeded") {
			result = "success"
		}
		errText := str(a, "error")
		if errText == "" {
			errText = "-"
		}
		t.row(
			fmt.Sprintf("%d", int(num(a, "cycle"))),
			str(a, "action"),
			millis(num(a, "duration_ms")),
			stateChange(baseline, shortFingerprint(str(a, "fingerprint"))),
			errText,
			renderOutcome(result),
		)
	}
	t.flush()
}

// shortFingerprint trims a state fingerprint for display.
func shortFingerprint(fp string) string {
	if fp == "" {
		return "-"
	}
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func stateChange(baseline, post string) string {
	switch {
	case post == "-":
		return "-"
	case post == baseline:
		return post + " (unchanged)"
	}
	return post
}

func printSummaries(out io.Writer, window time.Duration, summaries []history.ActionSummary) {
	if len(summaries) == 0 {
		fmt.Fprintln(out, "No attempts recorded in this window.")
		return
	}
	t := newTable(out, fmt.Sprintf("Actions over the last %s", window), "ACTION", "ATTEMPTS", "SUCCESSES", "AVG", "LAST USED", "RATE")
	for _, s := range summaries {
		t.row(
			s.Action,
			fmt.Sprintf("%d", s.Attempts),
			fmt.Sprintf("%d", s.Successes),
			s.AvgDuration.Round(time.Millisecond).String(),
			s.LastUsed.Local().Format("2006-01-02 15:04:05"),
			percent(s.SuccessRate()),
		)
	}
	t.flush()
}

func shortTime(rfc3339 string) string {
	ts, err := utils.ParseRFC3339(rfc3339)
	if err != nil {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}
