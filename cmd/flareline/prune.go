package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete events older than storage.retention",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		if a.cfg.Storage.Retention <= 0 {
			return fmt.Errorf("storage.retention is not set")
		}
		n, err := a.store.PruneEvents(context.Background(), time.Now().Add(-a.cfg.Storage.Retention))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pruned %d events\n", n)
		return nil
	},
}
