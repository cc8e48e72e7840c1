package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bowerhall/lantern/internal/backup"
	"github.com/bowerhall/lantern/internal/config"
)

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Upload a snapshot of the store to object storage now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			if !cfg.Storage.Enabled {
				return errors.New("object storage not configured (MINIO_ACCESS_KEY, MINIO_SECRET_KEY)")
			}

			client, err := newStorageClient(cfg.Storage)
			if err != nil {
				return fmt.Errorf("could not reach storage: %w", err)
			}

			store, err := openStore(cfg.Store.Backend, cfg.Store.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			name, err := backup.New(store, client, cfg.Backup.Keep, nil).RunOnce(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s/%s\n", client.Bucket(), name)
			return nil
		},
	}
}
