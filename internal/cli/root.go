// Package cli is the terminal front end: one-shot chats and thread management
// against the same chat service the desktop app uses.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/zjregee/alterchat/internal/config"
	"github.com/zjregee/alterchat/internal/log"
	"github.com/zjregee/alterchat/internal/service"
)

type rootOptions struct {
	configPath string
	cfg        *config.Config
}

func Execute() error {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		cmd.PrintErrln(errorStyle.Render("Error: " + err.Error()))
		return err
	}
	return nil
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "chatctl",
		Short:         "Chat with an agent runtime from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" {
				defaultPath, err := config.DefaultPath()
				if err != nil {
					return err
				}
				path = defaultPath
			}

			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			log.Init(cfg.Log, os.Stderr)
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default ~/.alterchat/config.yaml)")

	cmd.AddCommand(
		newChatCommand(opts),
		newThreadsCommand(opts),
		newModelsCommand(opts),
	)
	return cmd
}

func (o *rootOptions) newService(opts ...service.Option) (*service.ChatService, error) {
	return service.NewChatService(o.cfg, opts...)
}
