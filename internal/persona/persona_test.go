package persona

import (
	"strings"
	"testing"
	"time"

	"github.com/ember-labs/ember/pkg/history"
)

func TestReplyPrompt(t *testing.T) {
	b := NewBuilder("ember", "you are a test persona.")
	turns := []history.Turn{
		{Speaker: history.SpeakerUser, Text: "hey, you up?"},
		{Speaker: history.SpeakerAgent, Text: "barely lol"},
		{Speaker: history.SpeakerUser, Text: "same honestly"},
	}

	prompt := b.Reply(turns)

	if !strings.HasPrefix(prompt, "you are a test persona.") {
		t.Errorf("prompt does not start with the preamble:\n%s", prompt)
	}
	for _, want := range []string{
		"[User]: hey, you up?",
		"[ember]: barely lol",
		"[User]: same honestly",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	// History is serialized oldest first.
	if strings.Index(prompt, "hey, you up?") > strings.Index(prompt, "same honestly") {
		t.Error("history not in chronological order")
	}
	if !strings.Contains(prompt, "ember, reply to the last thing the user said.") {
		t.Errorf("prompt missing reply instruction:\n%s", prompt)
	}
}

func TestReplyEmptyHistory(t *testing.T) {
	b := NewBuilder("", "")
	prompt := b.Reply(nil)

	if !strings.Contains(prompt, DefaultPreamble) {
		t.Error("empty preamble did not fall back to the default")
	}
	if !strings.Contains(prompt, "Previous conversation:") {
		t.Errorf("prompt missing history header:\n%s", prompt)
	}
}

func TestOpenerPrompt(t *testing.T) {
	b := NewBuilder("ember", "you are a test persona.")
	now := time.Date(2025, 6, 1, 21, 42, 0, 0, time.UTC)

	prompt := b.Opener(now)

	if !strings.HasPrefix(prompt, "you are a test persona.") {
		t.Errorf("prompt does not start with the preamble:\n%s", prompt)
	}
	if !strings.Contains(prompt, "21:42") {
		t.Errorf("prompt missing local time:\n%s", prompt)
	}
	// Openers carry no conversation history.
	if strings.Contains(prompt, "Previous conversation") {
		t.Errorf("opener prompt includes history section:\n%s", prompt)
	}
}

func TestAgentTagUsesName(t *testing.T) {
	b := NewBuilder("vesper", "p.")
	prompt := b.Reply([]history.Turn{{Speaker: history.SpeakerAgent, Text: "hi"}})
	if !strings.Contains(prompt, "[vesper]: hi") {
		t.Errorf("agent turn not tagged with configured name:\n%s", prompt)
	}
}
