package main

import (
	"time"

	"github.com/spf13/cobra"

	"hopper/internal/ipc"
)

func newResultsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Inspect processed-file records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newResultsListCommand(ctx))
	cmd.AddCommand(newResultsKeepCommand(ctx))
	cmd.AddCommand(newResultsForgetCommand(ctx))
	return cmd
}

func newResultsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List processed files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ResultsList()
				if err != nil {
					return err
				}
				if len(resp.Results) == 0 {
					cmd.Println("No processed files.")
					return nil
				}
				rows := make([][]string, 0, len(resp.Results))
				for _, res := range resp.Results {
					keep := "yes"
					if !res.Keep {
						keep = "no"
					}
					updated := ""
					if !res.LastUpdated.IsZero() {
						updated = res.LastUpdated.Local().Format(time.DateTime)
					}
					rows = append(rows, []string{
						res.Filename,
						truncate(res.ShortDescription, 48),
						keep,
						updated,
					})
				}
				cmd.Println(renderTable(
					[]string{"File", "Description", "Keep", "Updated"},
					rows,
				))
				return nil
			})
		},
	}
}

func newResultsKeepCommand(ctx *commandContext) *cobra.Command {
	var discard bool
	cmd := &cobra.Command{
		Use:   "keep <filename>",
		Short: "Mark a processed file as kept (or discarded with --discard)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.ResultsKeep(args[0], !discard); err != nil {
					return err
				}
				cmd.Printf("updated %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&discard, "discard", false, "mark the file as discarded instead")
	return cmd
}

func newResultsForgetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <filename>",
		Short: "Forget a processed file so it can be ingested again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.ResultsForget(args[0]); err != nil {
					return err
				}
				cmd.Printf("forgot %s\n", args[0])
				return nil
			})
		},
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
