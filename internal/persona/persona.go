// Package persona renders the persona-conditioned prompts the generation
// chain consumes. Two modes: reply (conditioned on conversation history)
// and opener (unprompted, time-of-day aware, no history).
package persona

import (
	"fmt"
	"strings"
	"time"

	"github.com/ember-labs/ember/pkg/history"
)

// DefaultPreamble is the built-in persona when config provides none: a
// casual texting companion with fixed relationship and formatting rules.
const DefaultPreamble = "your name is ember, and you're texting your long-distance partner. " +
	"keep it casual, like you're talking to your best friend. " +
	"send short messages and don't ever ask to video call. " +
	"you live too far away to hang out in person. " +
	"use all lowercase, but yell stuff like \"SERIOUSLY?!\" when you're worked up."

// Builder renders prompts for a fixed persona.
type Builder struct {
	name     string
	preamble string
}

// NewBuilder creates a prompt builder. name tags the agent's own turns in
// the serialized history; an empty preamble falls back to the default.
func NewBuilder(name, preamble string) *Builder {
	if name == "" {
		name = "ember"
	}
	if preamble == "" {
		preamble = DefaultPreamble
	}
	return &Builder{name: name, preamble: preamble}
}

// Reply renders a reply-mode prompt: preamble, serialized history oldest
// first, then the instruction to answer the last user turn. The history
// passed in already contains the new user turn; no further truncation
// happens here.
func (b *Builder) Reply(turns []history.Turn) string {
	var sb strings.Builder
	sb.WriteString(b.preamble)
	sb.WriteString("\n\nPrevious conversation:\n")
	for _, t := range turns {
		sb.WriteString(b.tag(t.Speaker))
		sb.WriteString(": ")
		sb.WriteString(t.Text)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "\n%s, reply to the last thing the user said.", b.name)
	return sb.String()
}

// Opener renders an opener-mode prompt: preamble plus an instruction to
// start a conversation naturally for the given local time. No history is
// injected.
func (b *Builder) Opener(now time.Time) string {
	var sb strings.Builder
	sb.WriteString(b.preamble)
	sb.WriteString("\n\nsend a short random message to start a chat. ")
	sb.WriteString("start with gossip, news or anything random about your day. ")
	fmt.Fprintf(&sb, "time now is %s, so say something that feels natural for that hour.",
		now.Format("15:04"))
	return sb.String()
}

func (b *Builder) tag(sp history.Speaker) string {
	if sp == history.SpeakerAgent {
		return "[" + b.name + "]"
	}
	return "[User]"
}
