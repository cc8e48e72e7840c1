package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bowerhall/lantern/internal/conversation"
)

func init() {
	godotenv.Load()
}

const rootLongDesc string = `Lantern relays messages from a WeChat official account webhook to a
chat-completion backend and replies in character, keeping a short
rolling memory per sender.`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lantern",
		Short:         "WeChat webhook conversational relay",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newSignCmd())
	cmd.AddCommand(newBackupCmd())

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "lantern:", err)
		os.Exit(1)
	}
}

// openStore opens the conversation store on the configured backend.
func openStore(backend, path string) (*conversation.Store, error) {
	switch backend {
	case "", "file":
		return conversation.Open(conversation.NewFilePersister(path)), nil
	case "sqlite":
		p, err := conversation.NewSQLitePersister(path)
		if err != nil {
			return nil, err
		}
		return conversation.Open(p), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
