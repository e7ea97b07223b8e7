package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/ember-labs/ember/pkg/history"
)

// checkSpontaneous fires one unprompted round when the time-of-day gate
// and the cadence both allow it. The cadence is a fixed minimum interval
// since the last round; the last-fired timestamp advances once per round
// regardless of how many chats were messaged or how many sends failed.
func (b *Bot) checkSpontaneous(ctx context.Context) {
	now := b.now().In(b.loc)
	if !b.withinWindow(now) {
		return
	}
	if !b.lastSpontaneous.IsZero() && now.Sub(b.lastSpontaneous) < b.minInterval {
		return
	}
	b.lastSpontaneous = now

	ids := b.chatIDs()
	if len(ids) == 0 {
		return
	}
	slog.Info("spontaneous round starting", "chats", len(ids), "hour", now.Hour())

	for _, chatID := range ids {
		text := b.chain.Generate(ctx, b.prompts.Opener(now))
		if err := b.transport.SendText(ctx, chatID, text, 0); err != nil {
			slog.Error("spontaneous send failed", "chat", chatID, "error", err)
			continue
		}
		b.archiveTurn(chatKey(chatID), history.SpeakerAgent, text)
	}
}

// withinWindow reports whether the hour falls inside the configured
// [start, end] window, inclusive on both ends.
func (b *Bot) withinWindow(now time.Time) bool {
	h := now.Hour()
	return h >= b.config.Spontaneous.HourStart && h <= b.config.Spontaneous.HourEnd
}
