package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjregee/alterchat/internal/models"
	"github.com/zjregee/alterchat/internal/service"
	"github.com/zjregee/alterchat/internal/service/chat"
)

type chatOptions struct {
	model          string
	temperature    float64
	maxTokens      int
	strategy       string
	strategyNumber int
	threadID       string
	regenerate     bool
	render         bool
}

func newChatCommand(root *rootOptions) *cobra.Command {
	opts := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send a message and stream the reply",
		Example: `  chatctl chat "What is a checkpoint?"
  chatctl chat --thread 3f9c... "and after that?"
  chatctl chat --thread 3f9c... --regenerate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, root, opts, strings.Join(args, " "))
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.model, "model", "m", "", "model id")
	flags.Float64VarP(&opts.temperature, "temperature", "t", 0, "sampling temperature")
	flags.IntVar(&opts.maxTokens, "max-tokens", 0, "maximum tokens of the reply")
	flags.StringVar(&opts.strategy, "strategy", "", "messages strategy: delete, trim_count, trim_tokens or summarize")
	flags.IntVarP(&opts.strategyNumber, "strategy-number", "n", 0, "number the messages strategy keeps")
	flags.StringVar(&opts.threadID, "thread", "", "continue an existing thread")
	flags.BoolVar(&opts.regenerate, "regenerate", false, "regenerate the last reply of --thread")
	flags.BoolVar(&opts.render, "render", false, "render the reply as markdown when stdout is a terminal")
	return cmd
}

// settings overrides only the flags that were given.
func (o *chatOptions) settings(cmd *cobra.Command, settings models.Settings) models.Settings {
	flags := cmd.Flags()
	if flags.Changed("model") {
		settings.Model = o.model
	}
	if flags.Changed("temperature") {
		settings.Temperature = o.temperature
	}
	if flags.Changed("max-tokens") {
		settings.MaxTokens = o.maxTokens
	}
	if flags.Changed("strategy") {
		settings.MessagesStrategy = models.MessagesStrategy(o.strategy)
	}
	if flags.Changed("strategy-number") {
		settings.StrategyNumber = o.strategyNumber
	}
	return settings
}

func runChat(cmd *cobra.Command, root *rootOptions, opts *chatOptions, input string) error {
	if opts.regenerate && opts.threadID == "" {
		return errors.New("--regenerate needs --thread")
	}
	if !opts.regenerate && strings.TrimSpace(input) == "" {
		return errors.New("message is required")
	}

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	render := opts.render && isTTY(out)

	printer := newStreamPrinter(out)
	printer.quiet = render

	svc, err := root.newService(service.WithChatOptions(chat.WithListener(printer.onView)))
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.UpdateSettings(opts.settings(cmd, svc.Settings())); err != nil {
		return err
	}

	ctx := cmd.Context()
	if opts.threadID != "" {
		if err := svc.SelectThread(ctx, opts.threadID); err != nil {
			return err
		}
		printer.skip(svc.Controller().Store().Current())
	}

	var session *chat.Session
	if opts.regenerate {
		last := lastAIMessage(svc.Controller().Store().Current())
		if last == nil {
			return fmt.Errorf("thread %s has no reply to regenerate", opts.threadID)
		}
		session, err = svc.Regenerate(ctx, last.ID)
	} else {
		session, err = svc.Send(ctx, input)
	}
	if err != nil {
		return err
	}

	interrupted, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	select {
	case <-session.Done():
	case <-interrupted.Done():
		svc.Stop()
		<-session.Done()
	}
	printer.finish()

	view := svc.Controller().View()
	if render {
		if last := lastAIMessage(view.Messages); last != nil {
			fmt.Fprint(out, renderMarkdown(last.Content.String(), 80))
		}
	}
	if usage := formatUsage(view.LastUsage); usage != "" {
		fmt.Fprintln(errOut, mutedStyle.Render(usage))
	}
	if view.ThreadID != "" {
		fmt.Fprintln(errOut, mutedStyle.Render("thread: "+view.ThreadID))
	}

	switch session.State() {
	case chat.StateErrored:
		return session.Err()
	case chat.StateAborted:
		fmt.Fprintln(errOut, mutedStyle.Render("stopped"))
	}
	return nil
}
