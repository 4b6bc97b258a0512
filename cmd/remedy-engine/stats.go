package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-remedy/internal/utils"
)

func newStatsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show detailed session statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeConn, err := dial(opts)
			if err != nil {
				return err
			}
			defer closeConn()

			ctx, cancel := requestContext(cmd.Context())
			defer cancel()
			resp, err := client.GetStats(ctx)
			if err != nil {
				return fmt.Errorf("get stats: %w", err)
			}
			printStats(cmd.OutOrStdout(), resp.AsMap())
			return nil
		},
	}
}

func printStats(out io.Writer, stats map[string]any) {
	fmt.Fprintln(out, titleStyle.Render("Session"))
	fmt.Fprintf(out, "  Session:     %s\n", str(stats, "session_id"))
	fmt.Fprintf(out, "  Uptime:      %s\n", utils.FormatUptime(time.Duration(num(stats, "uptime_seconds"))*time.Second))
	fmt.Fprintf(out, "  Detections:  %d\n", int(num(stats, "total_triggers")))
	fmt.Fprintf(out, "  Resolved:    %d\n", int(num(stats, "total_successes")))
	fmt.Fprintf(out, "  Success:     %s\n", percent(num(stats, "success_ratio")))
	fmt.Fprintf(out, "  Attempt p50: %s\n", millis(num(stats, "attempt_p50_ms")))
	fmt.Fprintf(out, "  Attempt p95: %s\n", millis(num(stats, "attempt_p95_ms")))
	fmt.Fprintln(out)
	printActions(out, "Actions by success rate", list(stats, "actions"))
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show what the controller is doing right now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeConn, err := dial(opts)
			if err != nil {
				return err
			}
			defer closeConn()

			ctx, cancel := requestContext(cmd.Context())
			defer cancel()
			resp, err := client.GetStatus(ctx)
			if err != nil {
				return fmt.Errorf("get status: %w", err)
			}
			st := resp.AsMap()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "State:       %s\n", renderOutcome(str(st, "state")))
			if id := str(st, "resolution_id"); id != "" {
				fmt.Fprintf(out, "Resolution:  %s\n", id)
				fmt.Fprintf(out, "Target:      %s\n", str(st, "target_id"))
			}
			if action := str(st, "action"); action != "" {
				fmt.Fprintf(out, "Action:      %s (cycle %d)\n", action, int(num(st, "cycle")))
			}
			return nil
		},
	}
}

func newTriggerCommand(opts *rootOptions) *cobra.Command {
	var (
		title   string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "trigger TARGET_ID",
		Short: "Resolve a target now, bypassing the monitor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeConn, err := dial(opts)
			if err != nil {
				return err
			}
			defer closeConn()

			req, err := structpb.NewStruct(map[string]any{"target_id": args[0], "title": title})
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			resp, err := client.Trigger(ctx, req)
			if err != nil {
				return fmt.Errorf("trigger %s: %w", args[0], err)
			}
			printResolutionDetail(cmd.OutOrStdout(), resp.AsMap())
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Target title passed to executors")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "How long to wait for the resolution")
	return cmd
}
