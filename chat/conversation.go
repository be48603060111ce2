package chat

import (
	"errors"
	"sync"
)

// Role is the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrTurnInProgress is returned when opening a second assistant message
var ErrTurnInProgress = errors.New("assistant message already open")

// ErrNoOpenMessage is returned when updating content with no turn open
var ErrNoOpenMessage = errors.New("no open assistant message")

// Message is one entry of a conversation
type Message struct {
	Role     Role   `json:"role"`
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Conversation is the ordered message list of one chat. At most one
// assistant message is open (being streamed into) at a time. Safe for
// concurrent use so a renderer can read while a turn streams.
type Conversation struct {
	mu       sync.RWMutex
	messages []Message
	open     int // index of the open assistant message, -1 if none
}

// NewConversation creates an empty conversation
func NewConversation() *Conversation {
	return &Conversation{open: -1}
}

// AddUser appends a user message
func (c *Conversation) AddUser(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, Message{Role: RoleUser, Content: content})
}

// AddAssistant appends a complete assistant message (e.g. an image reply)
func (c *Conversation) AddAssistant(content, imageURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open >= 0 {
		return ErrTurnInProgress
	}
	c.messages = append(c.messages, Message{Role: RoleAssistant, Content: content, ImageURL: imageURL})
	return nil
}

// OpenAssistant appends an empty assistant message that subsequent
// SetOpenContent calls fill in
func (c *Conversation) OpenAssistant() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open >= 0 {
		return ErrTurnInProgress
	}
	c.messages = append(c.messages, Message{Role: RoleAssistant})
	c.open = len(c.messages) - 1
	return nil
}

// SetOpenContent replaces the content of the open assistant message with
// the text accumulated so far
func (c *Conversation) SetOpenContent(content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open < 0 {
		return ErrNoOpenMessage
	}
	c.messages[c.open].Content = content
	return nil
}

// CloseAssistant ends the streaming turn; the message becomes immutable
func (c *Conversation) CloseAssistant() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = -1
}

// Streaming reports whether an assistant message is open
func (c *Conversation) Streaming() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open >= 0
}

// DiscardEmpty removes every message with empty content and no image.
// It closes the open message if that one is removed.
func (c *Conversation) DiscardEmpty() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.messages[:0]
	removed := 0
	open := -1
	for i, m := range c.messages {
		if m.Content == "" && m.ImageURL == "" {
			removed++
			continue
		}
		if i == c.open {
			open = len(kept)
		}
		kept = append(kept, m)
	}
	for i := len(kept); i < len(c.messages); i++ {
		c.messages[i] = Message{}
	}
	c.messages = kept
	c.open = open
	return removed
}

// Messages returns a copy of the message list
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Last returns the most recent message
func (c *Conversation) Last() (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// LastAssistant returns the most recent assistant message
func (c *Conversation) LastAssistant() (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == RoleAssistant {
			return c.messages[i], true
		}
	}
	return Message{}, false
}

// Len returns the number of messages
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Clear removes all messages
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	c.open = -1
}
