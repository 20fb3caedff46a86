package models

import "time"

type Message struct {
	ID         string    `bson:"id" json:"id"`
	SenderID   string    `bson:"senderId" json:"senderId"`
	SenderName string    `bson:"senderName" json:"senderName"`
	Content    string    `bson:"content" json:"content"`
	SentAt     time.Time `bson:"sentAt" json:"sentAt"`

	// LocalOnly marks a message whose remote write failed outright. It is
	// visible to the sender only and is never persisted.
	LocalOnly bool `bson:"-" json:"localOnly,omitempty"`
}

type Conversation struct {
	ID            string    `bson:"_id,omitempty" json:"id"`
	Participants  []string  `bson:"participants" json:"participants"`
	IsGroup       bool      `bson:"isGroup" json:"isGroup"`
	Name          string    `bson:"name,omitempty" json:"name,omitempty"`
	Messages      []Message `bson:"messages" json:"messages"`
	LastMessageAt time.Time `bson:"lastMessageAt" json:"lastMessageAt"`
}

func (c Conversation) Clone() Conversation {
	out := c
	out.Participants = append([]string(nil), c.Participants...)
	out.Messages = append([]Message(nil), c.Messages...)
	return out
}

// HasParticipants reports whether the conversation is the direct thread for
// the unordered pair (a, b).
func (c Conversation) HasParticipants(a, b string) bool {
	if c.IsGroup || len(c.Participants) != 2 {
		return false
	}
	return (c.Participants[0] == a && c.Participants[1] == b) ||
		(c.Participants[0] == b && c.Participants[1] == a)
}
