package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bowerhall/lantern/internal/conversation"
)

const historyLongDesc string = `Print the stored turns for one sender, oldest first.

Reads the conversation store directly and read-only, so it works whether
or not the server is running. A corrupt store is reported, not moved.

Examples:
  lantern history oUser123
  lantern history -n 5 oUser123
  lantern history --store sqlite --db lantern.db oUser123`

type historyCommander struct {
	backend string
	path    string
	last    int
}

func newHistoryCmd() *cobra.Command {
	cmder := &historyCommander{}

	cmd := &cobra.Command{
		Use:   "history <sender>",
		Short: "Show a sender's conversation history",
		Long:  historyLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.OutOrStdout(), args[0])
		},
	}

	cmd.Flags().StringVar(&cmder.backend, "store", envOr("LANTERN_STORE", "file"), "Store backend (file or sqlite)")
	cmd.Flags().StringVar(&cmder.path, "db", envOr("LANTERN_DB", ""), "Path to the store (default database.json, or lantern.db for sqlite)")
	cmd.Flags().IntVarP(&cmder.last, "last", "n", 0, "Only show the last N turns")

	return cmd
}

func (c *historyCommander) run(out io.Writer, sender string) error {
	path := c.path
	if path == "" {
		path = "database.json"
		if c.backend == "sqlite" {
			path = "lantern.db"
		}
	}

	sessions, err := loadSessions(c.backend, path)
	if err != nil {
		return fmt.Errorf("could not read store %s: %w", path, err)
	}

	turns := sessions[sender]
	if c.last > 0 && c.last < len(turns) {
		turns = turns[len(turns)-c.last:]
	}

	if len(turns) == 0 {
		fmt.Fprintf(out, "No history for %s.\n", sender)
		return nil
	}

	printTurns(out, turns)
	return nil
}

func printTurns(out io.Writer, turns []conversation.Turn) {
	for i, t := range turns {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "user: %s\n", t.User)
		fmt.Fprintf(out, "ai:   %s\n", t.AI)
	}
}

// loadSessions reads a store without creating, migrating or quarantining it.
func loadSessions(backend, path string) (conversation.Sessions, error) {
	switch backend {
	case "", "file":
		return conversation.NewReadOnlyFilePersister(path).Load()
	case "sqlite":
		p, err := conversation.OpenSQLiteReadOnly(path)
		if errors.Is(err, os.ErrNotExist) {
			return conversation.Sessions{}, nil
		}
		if err != nil {
			return nil, err
		}
		defer p.Close()

		return p.Load()
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}
