package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/flareline/internal/logger"
	"github.com/rewired-gh/flareline/internal/telegram"
)

var (
	digestUser  string
	digestLabel string
	digestStart string
	digestEnd   string
	digestDry   bool
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Send a Telegram digest of a user's strongest patterns",
	Long: `Detect patterns for a user and send the strongest ones to Telegram.
With --dry-run the digest candidates are printed instead.`,
	Args: cobra.NoArgs,
	RunE: runDigest,
}

func init() {
	digestCmd.Flags().StringVar(&digestUser, "user", "", "User ID (required)")
	digestCmd.Flags().StringVar(&digestLabel, "label", "", "Display name used in the message (defaults to the user ID)")
	digestCmd.Flags().StringVar(&digestStart, "start", "", "Range start, RFC3339")
	digestCmd.Flags().StringVar(&digestEnd, "end", "", "Range end, RFC3339")
	digestCmd.Flags().BoolVar(&digestDry, "dry-run", false, "Print the digest candidates without sending")
	_ = digestCmd.MarkFlagRequired("user")
}

func runDigest(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	start, end, err := parseRange(digestStart, digestEnd, a.cfg.Server.DefaultRange)
	if err != nil {
		return err
	}

	ctx := context.Background()
	view, err := a.service.Load(ctx, digestUser, start, end)
	if err != nil {
		return err
	}
	candidates, err := a.service.FilterRecentlySent(ctx, digestUser, view.Patterns, a.cfg.Telegram.Cooldown)
	if err != nil {
		return err
	}

	if digestDry || !a.cfg.Telegram.Enabled {
		if !digestDry {
			logger.Warn("Telegram notifications disabled; printing digest instead")
		}
		for i, p := range telegram.RankPatterns(candidates, a.cfg.Telegram.TopN) {
			fmt.Fprintf(cmd.OutOrStdout(), "%d. %s (r=%+.2f, %s)\n", i+1, p.Description, p.Coefficient, p.Strength)
		}
		return nil
	}

	client, err := telegram.NewClient(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID,
		a.cfg.Telegram.MaxRetries, a.cfg.Telegram.RetryDelayBase, a.cfg.Telegram.TopN)
	if err != nil {
		return err
	}

	label := digestLabel
	if label == "" {
		label = digestUser
	}
	sent, err := client.SendDigest(label, candidates)
	if err != nil {
		return err
	}
	if err := a.service.RecordNotified(ctx, digestUser, sent); err != nil {
		return err
	}
	logger.Info("Sent digest with %d patterns for user %s", len(sent), digestUser)
	return nil
}
