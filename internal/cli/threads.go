package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/zjregee/alterchat/internal/models"
)

const maxListTitle = 60

func newThreadsCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "List, show and delete persisted threads",
	}
	cmd.AddCommand(
		newThreadsListCommand(root),
		newThreadsShowCommand(root),
		newThreadsDeleteCommand(root),
	)
	return cmd
}

func newThreadsListCommand(root *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List threads, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := root.newService()
			if err != nil {
				return err
			}
			defer svc.Close()

			list, err := svc.RefreshThreads(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				infos := make([]*models.ThreadInfo, 0, len(list))
				for _, thread := range list {
					infos = append(infos, &models.ThreadInfo{
						ID:        thread.ID,
						Title:     thread.FirstMessageText(),
						CreatedAt: thread.CreatedAt,
						UpdatedAt: thread.UpdatedAt,
					})
				}
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(infos)
			}

			if len(list) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("no threads"))
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUPDATED\tTITLE")
			for _, thread := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\n", thread.ID, formatMillis(thread.UpdatedAt), shorten(thread.FirstMessageText(), maxListTitle))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newThreadsShowCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <thread-id>",
		Short: "Print the transcript of a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := root.newService()
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.SelectThread(cmd.Context(), args[0]); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("thread "+args[0]))
			for _, msg := range svc.Controller().View().Messages {
				fmt.Fprintf(out, "\n%s\n%s\n", roleLabel(msg.Role), msg.Content.String())
				for _, call := range msg.AllToolCalls() {
					fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("tool call %s: %s %s", call.ID, call.Name, string(call.Args))))
				}
				if usage := formatUsage(msg.Usage); usage != "" {
					fmt.Fprintln(out, mutedStyle.Render(usage))
				}
			}
			return nil
		},
	}
}

func newThreadsDeleteCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <thread-id>...",
		Short: "Delete threads",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := root.newService()
			if err != nil {
				return err
			}
			defer svc.Close()

			for _, id := range args {
				if err := svc.DeleteThread(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "deleted "+id)
			}
			return nil
		},
	}
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}

func shorten(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit]) + "..."
}
