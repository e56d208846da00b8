package domain

import "time"

// ConversationMessage is one turn of an advisor chat, oldest first when
// assembled into a prompt.
type ConversationMessage struct {
	Role      string
	Content   string
	CreatedAt time.Time
}
