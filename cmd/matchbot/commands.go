package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"matchbot/internal/app"
	"matchbot/internal/orchestrator"
)

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "matchbot",
		Short:         "Pre-match, live and post-match discussion threads for sports events",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "./config.json", "path to config (json or yaml)")

	root.AddCommand(
		newRunCmd(&cfgPath),
		newPreCmd(&cfgPath),
		newLiveCmd(&cfgPath),
		newPostCmd(&cfgPath),
		newRegistryCmd(&cfgPath),
	)
	return root
}

func newRunCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon: discovery, phase timers and live loops",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}

func newPreCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "pre <event-id>",
		Short: "Create the pre-match thread for an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			res, err := a.Pre(cmd.Context(), args[0])
			printResult(cmd.OutOrStdout(), res)
			return err
		},
	}
}

func newLiveCmd(cfgPath *string) *cobra.Command {
	var noPost bool
	cmd := &cobra.Command{
		Use:   "live <event-id>",
		Short: "Create or re-attach to the live thread and keep it updated until the event ends",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			res, err := a.Live(cmd.Context(), args[0], !noPost)
			printResult(cmd.OutOrStdout(), res)
			return err
		},
	}
	cmd.Flags().BoolVar(&noPost, "no-post", false, "do not create the post-match thread when the event ends")
	return cmd
}

func newPostCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "post <event-id>",
		Short: "Create the post-match thread for a finished event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			res, err := a.Post(cmd.Context(), args[0])
			printResult(cmd.OutOrStdout(), res)
			return err
		},
	}
}

func newRegistryCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect or edit the thread registry",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show [event-id]",
			Short: "List tracked events, or print one record as JSON",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				reg, err := app.OpenRegistry(*cfgPath)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(args) == 1 {
					rec, ok := reg.Get(args[0])
					if !ok {
						return fmt.Errorf("event %s is not in the registry", args[0])
					}
					b, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(rec, "", "  ")
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintln(out, string(b))
					return nil
				}

				all := reg.All()
				ids := make([]string, 0, len(all))
				for id := range all {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "ID\tSLUG\tPRE\tLIVE\tPOST\tSTREAM")
				for _, id := range ids {
					r := all[id]
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", id, dash(r.Slug), dash(r.Pre), dash(r.Live), dash(r.Post), dash(r.StreamOverride))
				}
				return tw.Flush()
			},
		},
		&cobra.Command{
			Use:   "set-stream <event-id> <url|->",
			Short: "Override the stream link rendered into the live thread (\"-\" clears it)",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				reg, err := app.OpenRegistry(*cfgPath)
				if err != nil {
					return err
				}
				link := strings.TrimSpace(args[1])
				if link == "-" {
					link = ""
				}
				if _, err := reg.SetStreamOverride(args[0], link); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "stream for %s set to %q\n", args[0], link)
				return nil
			},
		},
	)
	return cmd
}

func printResult(w io.Writer, res orchestrator.Result) {
	if res.ID == "" {
		return
	}
	_, _ = fmt.Fprintf(w, "%s\tstate=%s\thandle=%s\tcreated=%t\tcycles=%d\n",
		res.ID, res.State, dash(string(res.Handle)), res.Created, res.Cycles)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
