package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/structpb"
)

func newActionsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "Show registered actions and their learned success rates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeConn, err := dial(opts)
			if err != nil {
				return err
			}
			defer closeConn()

			ctx, cancel := requestContext(cmd.Context())
			defer cancel()
			resp, err := client.ListActions(ctx)
			if err != nil {
				return fmt.Errorf("list actions: %w", err)
			}
			printActions(cmd.OutOrStdout(), "Actions", list(resp.AsMap(), "actions"))
			return nil
		},
	}
	cmd.AddCommand(newToggleCommand(opts, "enable", true))
	cmd.AddCommand(newToggleCommand(opts, "disable", false))
	return cmd
}

func newToggleCommand(opts *rootOptions, verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " NAME",
		Short: fmt.Sprintf("%s an action", verb),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeConn, err := dial(opts)
			if err != nil {
				return err
			}
			defer closeConn()

			req, err := structpb.NewStruct(map[string]any{"name": args[0], "enabled": enabled})
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd.Context())
			defer cancel()
			resp, err := client.UpdateAction(ctx, req)
			if err != nil {
				return fmt.Errorf("%s %s: %w", verb, args[0], err)
			}
			printActions(cmd.OutOrStdout(), "Actions", list(resp.AsMap(), "actions"))
			return nil
		},
	}
}

func printActions(out io.Writer, title string, actions []map[string]any) {
	if len(actions) == 0 {
		fmt.Fprintln(out, "No actions registered.")
		return
	}
	t := newTable(out, title, "NAME", "PRIORITY", "ATTEMPTS", "SUCCESSES", "RATE", "ENABLED")
	for _, a := range actions {
		t.row(
			str(a, "name"),
			fmt.Sprintf("%d", int(num(a, "priority"))),
			fmt.Sprintf("%d", int(num(a, "attempts"))),
			fmt.Sprintf("%d", int(num(a, "successes"))),
			percent(num(a, "success_rate")),
			renderEnabled(flag(a, "enabled")),
		)
	}
	t.flush()
}
