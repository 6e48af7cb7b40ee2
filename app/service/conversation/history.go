package conversation

import (
	"fmt"
	"strings"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of the conversation transcript.
type Turn struct {
	Role    string `json:"role" validate:"oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

type chatMessage struct {
	Role      string
	Text      string
	Timestamp time.Time
}

// ChatHistory is a bounded transcript; the oldest message is evicted first.
type ChatHistory struct {
	size     int
	messages []chatMessage
}

func newChatHistory(size int) ChatHistory {
	return ChatHistory{size: size}
}

func (h *ChatHistory) add(role, text string, now time.Time) {
	msg := chatMessage{
		Role:      role,
		Text:      text,
		Timestamp: now,
	}

	if len(h.messages) >= h.size {
		h.messages = append(h.messages[1:], msg)
	} else {
		h.messages = append(h.messages, msg)
	}
}

func (h *ChatHistory) empty() bool {
	return len(h.messages) == 0
}

func (h *ChatHistory) format() string {
	if len(h.messages) == 0 {
		return "No previous messages"
	}

	var builder strings.Builder

	for _, msg := range h.messages {
		builder.WriteString(fmt.Sprintf("%s: %s\n", msg.Role, msg.Text))
	}

	return strings.TrimRight(builder.String(), "\n")
}
