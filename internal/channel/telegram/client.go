// Package telegram implements the Telegram Bot API transport.
// It speaks the plain HTTP Bot API directly: getUpdates with an offset
// for long polling, sendMessage for text, sendPhoto for images.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ember-labs/ember/pkg/channel"
)

// maxMessageLen is the Bot API limit for a single text message.
const maxMessageLen = 4096

// Config holds Telegram transport configuration.
type Config struct {
	Token   string
	APIBase string // defaults to https://api.telegram.org
	Client  *http.Client
}

// Client is a minimal Bot API client implementing channel.Transport.
type Client struct {
	token   string
	apiBase string
	http    *http.Client
}

// New creates a Telegram transport client.
func New(cfg Config) *Client {
	base := cfg.APIBase
	if base == "" {
		base = "https://api.telegram.org"
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		token:   cfg.Token,
		apiBase: base,
		http:    httpClient,
	}
}

// --- Wire types ---

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type wireUpdate struct {
	UpdateID int64        `json:"update_id"`
	Message  *wireMessage `json:"message"`
}

type wireMessage struct {
	MessageID int64 `json:"message_id"`
	Chat      *struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text  string            `json:"text"`
	Photo []json.RawMessage `json:"photo"`
}

// FetchUpdates fetches all pending updates with ID >= offset.
// Updates without a message payload (or without a chat) come back with a
// zero ChatID; the poll loop decides what to do with them so the
// watermark still advances past every returned ID.
func (c *Client) FetchUpdates(ctx context.Context, offset int64) ([]channel.Update, error) {
	q := url.Values{}
	q.Set("offset", strconv.FormatInt(offset, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.methodURL("getUpdates")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create getUpdates request: %w", err)
	}

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}

	var raw []wireUpdate
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse updates: %w", err)
	}

	updates := make([]channel.Update, 0, len(raw))
	for _, u := range raw {
		upd := channel.Update{ID: u.UpdateID}
		if u.Message != nil && u.Message.Chat != nil {
			upd.ChatID = u.Message.Chat.ID
			upd.MessageID = u.Message.MessageID
			upd.Text = u.Message.Text
			upd.HasPhoto = len(u.Message.Photo) > 0
		}
		updates = append(updates, upd)
	}
	return updates, nil
}

// SendText sends a text message, splitting anything over the platform
// limit into sequential numbered chunks. Only the first chunk carries the
// reply linkage.
func (c *Client) SendText(ctx context.Context, chatID int64, text string, replyTo int64) error {
	if len(text) <= maxMessageLen {
		return c.sendOne(ctx, chatID, text, replyTo)
	}

	chunks := splitMessage(text, maxMessageLen-16)
	for i, chunk := range chunks {
		prefix := fmt.Sprintf("[%d/%d] ", i+1, len(chunks))
		rt := int64(0)
		if i == 0 {
			rt = replyTo
		}
		if err := c.sendOne(ctx, chatID, prefix+chunk, rt); err != nil {
			return err
		}
		if i < len(chunks)-1 {
			time.Sleep(500 * time.Millisecond)
		}
	}
	slog.Info("telegram message sent", "chat", chatID, "chunks", len(chunks), "total_len", len(text))
	return nil
}

func (c *Client) sendOne(ctx context.Context, chatID int64, text string, replyTo int64) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if replyTo != 0 {
		payload["reply_to_message_id"] = replyTo
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.methodURL("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if _, err := c.do(req); err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}
	slog.Debug("telegram message sent", "chat", chatID, "len", len(text))
	return nil
}

// SendPhoto sends a photo by remote URL or by uploading raw bytes.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photo channel.ImageRef, caption string) error {
	if photo.URL != "" {
		payload := map[string]any{
			"chat_id": chatID,
			"photo":   photo.URL,
		}
		if caption != "" {
			payload["caption"] = caption
		}
		body, _ := json.Marshal(payload)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.methodURL("sendPhoto"), bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create sendPhoto request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		if _, err := c.do(req); err != nil {
			return fmt.Errorf("sendPhoto: %w", err)
		}
		return nil
	}

	// Raw bytes go up as a multipart upload.
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("chat_id", strconv.FormatInt(chatID, 10))
	if caption != "" {
		w.WriteField("caption", caption)
	}
	part, err := w.CreateFormFile("photo", "image.jpg")
	if err != nil {
		return fmt.Errorf("create photo part: %w", err)
	}
	if _, err := part.Write(photo.Data); err != nil {
		return fmt.Errorf("write photo part: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.methodURL("sendPhoto"), &buf)
	if err != nil {
		return fmt.Errorf("create sendPhoto request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	if _, err := c.do(req); err != nil {
		return fmt.Errorf("sendPhoto: %w", err)
	}
	slog.Debug("telegram photo sent", "chat", chatID, "bytes", len(photo.Data))
	return nil
}

// --- HTTP helpers ---

func (c *Client) methodURL(method string) string {
	return c.apiBase + "/bot" + c.token + "/" + method
}

// do executes a request and unwraps the Bot API envelope, returning the
// raw result payload.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("parse envelope: %w", err)
	}
	if !envelope.OK {
		return nil, fmt.Errorf("api error: %s", envelope.Description)
	}
	return envelope.Result, nil
}

func splitMessage(s string, maxLen int) []string {
	var chunks []string
	for len(s) > maxLen {
		chunks = append(chunks, s[:maxLen])
		s = s[maxLen:]
	}
	if len(s) > 0 {
		chunks = append(chunks, s)
	}
	return chunks
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
