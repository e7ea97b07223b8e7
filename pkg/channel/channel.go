// Package channel defines the contract between the bot core and the
// messaging platform. The platform is consumed as a pull source (updates
// fetched by offset) and a push sink (text and photo sends).
package channel

import "context"

// Update is one inbound event from the platform. IDs are strictly
// increasing; the poll loop uses them as its de-duplication watermark.
type Update struct {
	// ID is the platform-assigned update identifier.
	ID int64

	// ChatID identifies the conversation. Zero means the update carried
	// no usable chat reference (malformed or non-message update).
	ChatID int64

	// MessageID is the platform message identifier, used for reply linkage.
	MessageID int64

	// Text is the message text, empty if the update carried none.
	Text string

	// HasPhoto indicates the message carried a photo payload.
	HasPhoto bool
}

// ImageRef addresses an outbound photo: a remote URL the platform fetches
// itself, or raw encoded image bytes uploaded with the request.
type ImageRef struct {
	URL  string
	Data []byte
}

// Transport is the platform client surface the bot depends on.
type Transport interface {
	// FetchUpdates returns all pending updates with ID >= offset, in
	// ascending ID order. Network and non-2xx failures are recoverable:
	// the caller logs and retries on its next poll cycle.
	FetchUpdates(ctx context.Context, offset int64) ([]Update, error)

	// SendText sends a text message. replyTo links the message as a reply
	// when non-zero. Fire-and-forget: failures are logged, not retried.
	SendText(ctx context.Context, chatID int64, text string, replyTo int64) error

	// SendPhoto sends a photo with an optional caption.
	SendPhoto(ctx context.Context, chatID int64, photo ImageRef, caption string) error
}
