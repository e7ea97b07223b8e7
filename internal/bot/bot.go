// Package bot implements the Ember orchestration core — the long-poll
// loop that reads platform updates, routes commands, generates replies
// through the provider chain, and emits spontaneous messages.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ember-labs/ember/internal/channel/telegram"
	"github.com/ember-labs/ember/internal/llm"
	"github.com/ember-labs/ember/internal/persona"
	"github.com/ember-labs/ember/pkg/archive"
	"github.com/ember-labs/ember/pkg/channel"
	"github.com/ember-labs/ember/pkg/history"
)

// photoKeywords is the fixed set of phrasings that trigger photo
// delivery. Matched case-insensitively as substrings.
var photoKeywords = []string{
	"send me a pic",
	"send a pic",
	"send me a photo",
	"send a photo",
	"send me a selfie",
	"send a selfie",
	"pic of you",
	"photo of you",
}

const imageFailureText = "couldn't generate image, try again later."

// Bot is the orchestrator. All mutation of history, the watermark and the
// conversation registry happens on the single poll-processing path; the
// diagnostics HTTP surface only reads snapshots.
type Bot struct {
	config    *Config
	transport channel.Transport
	chain     *llm.Chain
	images    *llm.ImageClient // nil when image generation is disabled
	prompts   *persona.Builder
	history   *history.Store
	archive   *archive.Archive // nil when the archive is disabled

	pollInterval time.Duration
	loc          *time.Location

	// Poll state — written only by the loop goroutine; atomic so the
	// diagnostics reader can snapshot it.
	watermark atomic.Int64

	// Registry of conversations seen this process lifetime. Guarded for
	// the concurrent diagnostics reader; grows monotonically.
	chatsMu sync.Mutex
	chats   map[int64]struct{}

	// Spontaneous cadence state.
	lastSpontaneous time.Time
	minInterval     time.Duration

	// Diagnostics.
	startedAt time.Time
	processed atomic.Int64
	healthy   atomic.Bool

	// now is the clock, injectable in tests.
	now func() time.Time
}

// New creates a bot from config. arch may be nil.
func New(cfg *Config, arch *archive.Archive) (*Bot, error) {
	if cfg.Telegram.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	loc, err := time.LoadLocation(cfg.Spontaneous.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Spontaneous.Timezone, err)
	}

	providers, err := buildProviders(cfg.Providers)
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		slog.Warn("no generation backends configured — every reply will be the apology text")
	}

	// The chain's per-attempt timeout follows the first provider that
	// sets one; the rest share it.
	attemptTimeout := time.Duration(0)
	for _, pc := range cfg.Providers {
		if pc.Timeout != "" {
			attemptTimeout = duration(pc.Timeout, 0)
			break
		}
	}

	b := &Bot{
		config:    cfg,
		transport: telegram.New(telegram.Config{Token: cfg.Telegram.Token, APIBase: cfg.Telegram.APIBase}),
		chain:     llm.NewChain(providers, attemptTimeout, cfg.Persona.Apology),
		prompts:   persona.NewBuilder(cfg.Persona.Name, cfg.Persona.Preamble),
		history:   history.NewStore(cfg.History.Path, cfg.History.MaxTurns),
		archive:   arch,

		pollInterval: duration(cfg.Telegram.PollInterval, 2*time.Second),
		loc:          loc,
		chats:        make(map[int64]struct{}),
		minInterval:  duration(cfg.Spontaneous.MinInterval, 3*time.Hour),
		startedAt:    time.Now(),
		now:          time.Now,
	}

	if cfg.Image.Enabled {
		if cf := findCloudflare(cfg.Providers); cf != nil {
			b.images = llm.NewImageClient(cf.AccountID, cf.APIKey, cfg.Image.Model)
		} else {
			slog.Warn("image generation enabled but no cloudflare provider configured")
		}
	}

	return b, nil
}

func buildProviders(configs []ProviderConfig) ([]llm.Provider, error) {
	var providers []llm.Provider
	for _, pc := range configs {
		if pc.APIKey == "" {
			slog.Warn("skipping backend with no api key", "kind", pc.Kind)
			continue
		}
		switch pc.Kind {
		case "cloudflare":
			providers = append(providers, llm.NewCloudflare(
				pc.AccountID, pc.APIKey, pc.Model, pc.MaxTokens, pc.Temperature))
		case "openai":
			providers = append(providers, llm.NewOpenAI(
				pc.BaseURL, pc.APIKey, pc.Model, pc.MaxTokens, pc.Temperature))
		case "anthropic":
			providers = append(providers, llm.NewAnthropic(
				pc.APIKey, pc.Model, pc.MaxTokens, pc.Temperature))
		default:
			return nil, fmt.Errorf("unknown provider kind %q", pc.Kind)
		}
		slog.Info("generation backend configured", "kind", pc.Kind, "model", pc.Model)
	}
	return providers, nil
}

func findCloudflare(configs []ProviderConfig) *ProviderConfig {
	for i := range configs {
		if configs[i].Kind == "cloudflare" && configs[i].APIKey != "" {
			return &configs[i]
		}
	}
	return nil
}

// Run starts the poll loop. Blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.history.Load()

	if b.config.HTTPAddr != "" {
		go b.serveStatus(ctx)
	}

	b.healthy.Store(true)
	defer b.healthy.Store(false)

	slog.Info("ember running",
		"name", b.config.Name,
		"backends", b.chain.Len(),
		"poll_interval", b.pollInterval,
	)

	for {
		b.pollOnce(ctx)
		b.checkSpontaneous(ctx)

		select {
		case <-ctx.Done():
			slog.Info("ember stopping")
			return nil
		case <-time.After(b.pollInterval):
		}
	}
}

// pollOnce fetches and processes one batch of updates. Fetch failures
// skip the iteration; the poll interval is the retry delay.
func (b *Bot) pollOnce(ctx context.Context) {
	updates, err := b.transport.FetchUpdates(ctx, b.watermark.Load()+1)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("update fetch failed", "error", err)
		}
		return
	}

	for _, u := range updates {
		if u.ID <= b.watermark.Load() {
			continue
		}
		// Advance before processing: a poison update is processed at
		// most once even if handling it fails.
		b.watermark.Store(u.ID)
		b.processed.Add(1)

		if u.ChatID == 0 {
			slog.Warn("skipping malformed update", "update_id", u.ID)
			continue
		}
		b.registerChat(u.ChatID)

		if u.Text == "" {
			if !u.HasPhoto {
				continue
			}
			// Inbound photos register the chat but get no reply yet.
			slog.Debug("photo message received", "chat", u.ChatID)
			continue
		}

		b.route(ctx, u)
	}
}

// route classifies a text message and dispatches it. Branches are
// mutually exclusive and tried in fixed priority order: reset command,
// photo request, plain reply.
func (b *Bot) route(ctx context.Context, u channel.Update) {
	if isResetCommand(u.Text) {
		b.handleReset(ctx, u)
		return
	}
	if prompt, ok := photoRequest(u.Text, b.config.Image.DefaultPrompt); ok {
		b.handlePhoto(ctx, u, prompt)
		return
	}
	b.handleReply(ctx, u)
}

// isResetCommand reports whether the first whitespace-delimited token is
// /reset, case-insensitive, with any @botname suffix stripped.
func isResetCommand(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	cmd := strings.ToLower(fields[0])
	cmd, _, _ = strings.Cut(cmd, "@")
	return cmd == "/reset"
}

// photoRequest reports whether the message asks for a photo, either via
// the explicit /photo command (prompt follows the command) or one of the
// fixed keyword phrasings.
func photoRequest(text, defaultPrompt string) (string, bool) {
	if defaultPrompt == "" {
		defaultPrompt = "a cozy evening selfie"
	}
	lower := strings.ToLower(text)
	if strings.HasPrefix(lower, "/photo") {
		prompt := strings.TrimSpace(text[len("/photo"):])
		if prompt == "" {
			prompt = defaultPrompt
		}
		return prompt, true
	}
	for _, kw := range photoKeywords {
		if strings.Contains(lower, kw) {
			return defaultPrompt, true
		}
	}
	return "", false
}

// handleReset clears the conversation and answers with an opener, as if
// the conversation had just started. The opener is not recorded in the
// fresh history.
func (b *Bot) handleReset(ctx context.Context, u channel.Update) {
	chatKey := chatKey(u.ChatID)
	b.history.Reset(chatKey)
	slog.Info("history reset", "chat", u.ChatID)

	text := b.chain.Generate(ctx, b.prompts.Opener(b.now().In(b.loc)))
	if err := b.transport.SendText(ctx, u.ChatID, text, u.MessageID); err != nil {
		slog.Error("send failed", "chat", u.ChatID, "error", err)
	}
	b.archiveTurn(chatKey, history.SpeakerAgent, text)
}

// handlePhoto delivers a generated image, or one of the configured
// assets when generation is unavailable. History is untouched.
func (b *Bot) handlePhoto(ctx context.Context, u channel.Update, prompt string) {
	if b.images != nil {
		data, err := b.images.Generate(ctx, prompt)
		if err != nil {
			slog.Warn("image generation failed", "chat", u.ChatID, "error", err)
			if err := b.transport.SendText(ctx, u.ChatID, imageFailureText, u.MessageID); err != nil {
				slog.Error("send failed", "chat", u.ChatID, "error", err)
			}
			return
		}
		ref := channel.ImageRef{Data: data}
		if err := b.transport.SendPhoto(ctx, u.ChatID, ref, "here: "+prompt); err != nil {
			slog.Error("photo send failed", "chat", u.ChatID, "error", err)
		}
		return
	}

	if len(b.config.Image.Assets) > 0 {
		url := b.config.Image.Assets[rand.IntN(len(b.config.Image.Assets))]
		if err := b.transport.SendPhoto(ctx, u.ChatID, channel.ImageRef{URL: url}, ""); err != nil {
			slog.Error("photo send failed", "chat", u.ChatID, "error", err)
		}
		return
	}

	slog.Warn("photo requested but no image source configured", "chat", u.ChatID)
	if err := b.transport.SendText(ctx, u.ChatID, imageFailureText, u.MessageID); err != nil {
		slog.Error("send failed", "chat", u.ChatID, "error", err)
	}
}

// handleReply runs the plain-message path: record the user turn, build a
// reply-mode prompt from the updated history, generate, record the agent
// turn, send. An agent turn already appended stays appended even if the
// send fails — delivery and state are not transactional.
func (b *Bot) handleReply(ctx context.Context, u channel.Update) {
	chatKey := chatKey(u.ChatID)

	b.history.Append(chatKey, history.Turn{Speaker: history.SpeakerUser, Text: u.Text})
	b.archiveTurn(chatKey, history.SpeakerUser, u.Text)

	prompt := b.prompts.Reply(b.history.Turns(chatKey))
	text := b.chain.Generate(ctx, prompt)

	b.history.Append(chatKey, history.Turn{Speaker: history.SpeakerAgent, Text: text})
	b.archiveTurn(chatKey, history.SpeakerAgent, text)

	if err := b.transport.SendText(ctx, u.ChatID, text, u.MessageID); err != nil {
		slog.Error("send failed", "chat", u.ChatID, "error", err)
	}
}

// registerChat records a conversation id. Once seen, an id is never
// removed for the rest of the process lifetime.
func (b *Bot) registerChat(chatID int64) {
	b.chatsMu.Lock()
	b.chats[chatID] = struct{}{}
	b.chatsMu.Unlock()
}

// chatIDs returns a snapshot of the registry.
func (b *Bot) chatIDs() []int64 {
	b.chatsMu.Lock()
	defer b.chatsMu.Unlock()
	ids := make([]int64, 0, len(b.chats))
	for id := range b.chats {
		ids = append(ids, id)
	}
	return ids
}

// archiveTurn records a turn in the durable archive, off the message
// path. Archive failures never affect delivery.
func (b *Bot) archiveTurn(chatKey string, sp history.Speaker, text string) {
	if b.archive == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.archive.Record(ctx, chatKey, string(sp), text); err != nil {
			slog.Warn("archive record failed", "chat", chatKey, "error", err)
		}
	}()
}

func chatKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}
