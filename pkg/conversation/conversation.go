// Package conversation holds the ordered message history of one logical
// thread of dependent questions.
package conversation

import (
	"errors"
	"fmt"
	"slices"

	"github.com/papercomputeco/ligandx/pkg/llm"
)

// ErrOutOfOrder is returned when a turn would break the system-first,
// user/assistant alternation of a conversation.
var ErrOutOfOrder = errors.New("conversation turn out of order")

// Conversation is an append-only history. A system turn, if present, is
// first; after it user and assistant turns strictly alternate.
type Conversation struct {
	turns []llm.Message
}

// New starts a conversation with an optional system prompt (empty for none)
// followed by seed turns.
func New(systemPrompt string, seed ...llm.Message) (*Conversation, error) {
	c := &Conversation{}
	if systemPrompt != "" {
		c.turns = append(c.turns, llm.NewTextMessage(llm.RoleSystem, systemPrompt))
	}
	for _, m := range seed {
		if err := c.Append(m.Role, m.Content); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Append adds a turn, enforcing turn order.
func (c *Conversation) Append(role, content string) error {
	last := ""
	if n := len(c.turns); n > 0 {
		last = c.turns[n-1].Role
	}

	switch role {
	case llm.RoleSystem:
		if len(c.turns) != 0 {
			return fmt.Errorf("%w: system turn must come first", ErrOutOfOrder)
		}
	case llm.RoleUser:
		if last == llm.RoleUser {
			return fmt.Errorf("%w: user turn follows unanswered user turn", ErrOutOfOrder)
		}
	case llm.RoleAssistant:
		if last != llm.RoleUser {
			return fmt.Errorf("%w: assistant turn must answer a user turn", ErrOutOfOrder)
		}
	default:
		return fmt.Errorf("unknown role %q", role)
	}

	c.turns = append(c.turns, llm.NewTextMessage(role, content))
	return nil
}

// Exchange appends a user turn and its answer.
func (c *Conversation) Exchange(question, answer string) error {
	if err := c.Append(llm.RoleUser, question); err != nil {
		return err
	}
	return c.Append(llm.RoleAssistant, answer)
}

// Branch starts a fresh conversation that keeps none of this history. An
// empty systemPrompt reuses this conversation's system prompt.
func (c *Conversation) Branch(systemPrompt string, seed ...llm.Message) (*Conversation, error) {
	if systemPrompt == "" {
		systemPrompt = c.System()
	}
	return New(systemPrompt, seed...)
}

// PopLast removes and returns the most recent turn. The system turn is never
// popped.
func (c *Conversation) PopLast() (llm.Message, bool) {
	n := len(c.turns)
	if n == 0 || c.turns[n-1].Role == llm.RoleSystem {
		return llm.Message{}, false
	}
	last := c.turns[n-1]
	c.turns = c.turns[:n-1]
	return last, true
}

// System returns the system prompt, or "".
func (c *Conversation) System() string {
	if len(c.turns) > 0 && c.turns[0].Role == llm.RoleSystem {
		return c.turns[0].Content
	}
	return ""
}

// Last returns the most recent turn.
func (c *Conversation) Last() (llm.Message, bool) {
	if len(c.turns) == 0 {
		return llm.Message{}, false
	}
	return c.turns[len(c.turns)-1], true
}

// AwaitingAnswer reports whether the last turn is an unanswered user turn.
func (c *Conversation) AwaitingAnswer() bool {
	last, ok := c.Last()
	return ok && last.Role == llm.RoleUser
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []llm.Message {
	return slices.Clone(c.turns)
}

// Len returns the number of turns, system turn included.
func (c *Conversation) Len() int {
	return len(c.turns)
}
