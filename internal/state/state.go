// Package state holds the session-scoped UI state shared by the pipelines.
package state

import (
	"sync"

	"voxcanvas/internal/domain"
)

// PromptBuffer is the shared input text. Typing replaces it, transcripts are
// appended to its end, and sending a message resets it.
type PromptBuffer struct {
	mu       sync.Mutex
	text     string
	onChange func(string)
}

// NewPromptBuffer creates an empty buffer. onChange, if set, receives the new
// text after every mutation.
func NewPromptBuffer(onChange func(string)) *PromptBuffer {
	return &PromptBuffer{onChange: onChange}
}

func (b *PromptBuffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

func (b *PromptBuffer) Set(text string) {
	b.mutate(func(string) string { return text })
}

func (b *PromptBuffer) Append(text string) {
	b.mutate(func(current string) string { return current + text })
}

// Take returns the current text and resets the buffer.
func (b *PromptBuffer) Take() string {
	var taken string
	b.mutate(func(current string) string {
		taken = current
		return ""
	})
	return taken
}

func (b *PromptBuffer) mutate(fn func(string) string) {
	b.mu.Lock()
	b.text = fn(b.text)
	text := b.text
	b.mu.Unlock()

	if b.onChange != nil {
		b.onChange(text)
	}
}

// Conversation is the append-only message log.
type Conversation struct {
	mu       sync.RWMutex
	messages []domain.Message
}

func NewConversation() *Conversation {
	return &Conversation{}
}

func (c *Conversation) Append(message domain.Message) {
	if len(message.Attachments) > 0 {
		message.Attachments = append([]string(nil), message.Attachments...)
	}
	c.mu.Lock()
	c.messages = append(c.messages, message)
	c.mu.Unlock()
}

// Messages returns a snapshot of the log.
func (c *Conversation) Messages() []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Clear drops the whole log.
func (c *Conversation) Clear() {
	c.mu.Lock()
	c.messages = nil
	c.mu.Unlock()
}
