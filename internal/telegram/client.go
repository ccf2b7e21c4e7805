// Package telegram sends pattern digests via the Telegram Bot API.
// It formats the strongest detected patterns into a MarkdownV2 message and
// handles delivery with retry and linear back-off.
package telegram

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/flareline/internal/models"
)

// sender is the part of tgbotapi.BotAPI the client uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications
type Client struct {
	bot            sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	topN           int
	now            func() time.Time
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration, topN int) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newClient(bot, chatID, maxRetries, retryDelayBase, topN)
}

func newClient(bot sender, chatID string, maxRetries int, retryDelayBase time.Duration, topN int) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	if topN <= 0 {
		topN = 5
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		topN:           topN,
		now:            time.Now,
	}, nil
}

// SendDigest sends the strongest patterns for a user. It returns the patterns
// that were included; nothing is sent when there are none.
func (c *Client) SendDigest(userLabel string, patterns []models.DetectedPattern) ([]models.DetectedPattern, error) {
	top := RankPatterns(patterns, c.topN)
	if len(top) == 0 {
		return top, nil
	}

	msg := tgbotapi.NewMessage(c.chatID, formatDigest(userLabel, top, c.now()))
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return top, nil
		}
		lastErr = err
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
		}
	}

	return nil, fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// formatDigest formats ranked patterns into a Telegram message
func formatDigest(userLabel string, patterns []models.DetectedPattern, at time.Time) string {
	var b strings.Builder

	b.WriteString("🔎 *Patterns in your timeline*\n")
	if userLabel != "" {
		fmt.Fprintf(&b, "👤 %s\n", escapeMarkdownV2(userLabel))
	}
	fmt.Fprintf(&b, "📅 %s\n\n", escapeMarkdownV2(at.Format("2006-01-02 15:04")))

	for i, p := range patterns {
		directionEmoji := "📈"
		if p.Coefficient < 0 {
			directionEmoji = "📉"
		}

		fmt.Fprintf(&b, "%d\\. %s\n", i+1, escapeMarkdownV2(p.Description))
		fmt.Fprintf(&b, "   %s Correlation: *%s* \\(%s, %s confidence\\)\n",
			directionEmoji,
			escapeMarkdownV2(fmt.Sprintf("%+.2f", p.Coefficient)),
			escapeMarkdownV2(string(p.Strength)),
			escapeMarkdownV2(string(p.Confidence)))

		lag := formatDuration(hoursToDuration(p.LagHours))
		if p.ObservedLagHours > 0 {
			lag += fmt.Sprintf(", observed %s", formatDuration(hoursToDuration(p.ObservedLagHours)))
		}
		fmt.Fprintf(&b, "   ⏱ Lag: %s\n\n", escapeMarkdownV2(lag))
	}

	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	// _ * [ ] ( ) ~ ` > # + - = | { } . ! all take a \ prefix
	var b strings.Builder
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

func hoursToDuration(h float64) time.Duration {
	if math.IsNaN(h) || math.IsInf(h, 0) || h <= 0 {
		return 0
	}
	return time.Duration(h * float64(time.Hour))
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d >= time.Hour {
		if d%time.Hour == 0 {
			return fmt.Sprintf("%dh", int(d.Hours()))
		}
		return fmt.Sprintf("%.1fh", d.Hours())
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}
