// Package chat is the conversation/message synchronizer: a specialized live
// mirror of the current identity's conversations, with optimistic message
// sends and a local-only fallback when the remote write fails outright.
package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fearlessjoy/fridaynz/docstore"
	"github.com/fearlessjoy/fridaynz/logging"
	"github.com/fearlessjoy/fridaynz/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/exp/slices"
)

const ConversationsCollection = "conversations"

type Synchronizer struct {
	store docstore.Store

	mu            sync.Mutex
	identityID    string
	conversations []models.Conversation
	lastErr       error
	cancel        func()
}

func NewSynchronizer(store docstore.Store) *Synchronizer {
	return &Synchronizer{store: store}
}

// Start subscribes to the conversations the identity participates in,
// ordered by latest activity. Rebound on every identity change.
func (s *Synchronizer) Start(ctx context.Context, identityID string) error {
	s.Stop()

	s.mu.Lock()
	s.identityID = identityID
	s.mu.Unlock()

	cancel, err := s.store.Subscribe(ctx, ConversationsCollection,
		[]docstore.Filter{{Field: "participants", Op: "array-contains", Value: identityID}},
		&docstore.Order{Field: "lastMessageAt", Desc: true},
		s.handleSnapshot, s.handleStreamError)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.cancel = cancel
	s.lastErr = nil
	s.mu.Unlock()
	return nil
}

func (s *Synchronizer) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.conversations = nil
	s.identityID = ""
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// handleSnapshot rebuilds the mirror from the full snapshot. Message history
// is append-only and fully overwritten by the server copy; only local-only
// messages — sends the backend rejected — are re-appended so the sender's
// view doesn't lose them.
func (s *Synchronizer) handleSnapshot(docs []bson.Raw) {
	fresh := make([]models.Conversation, 0, len(docs))
	for _, doc := range docs {
		var conversation models.Conversation
		if err := bson.Unmarshal(doc, &conversation); err != nil {
			logging.Logger.Errorf("Event ID: SNAPSHOT_DECODE_FAILED, Description: Failed to decode conversation from snapshot: %v", err)
			continue
		}
		fresh = append(fresh, conversation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, conversation := range fresh {
		idx := slices.IndexFunc(s.conversations, func(c models.Conversation) bool { return c.ID == conversation.ID })
		if idx < 0 {
			continue
		}
		for _, message := range s.conversations[idx].Messages {
			if !message.LocalOnly {
				continue
			}
			present := slices.ContainsFunc(conversation.Messages, func(m models.Message) bool { return m.ID == message.ID })
			if !present {
				fresh[i].Messages = append(fresh[i].Messages, message)
			}
		}
	}

	s.conversations = fresh
	s.lastErr = nil
}

func (s *Synchronizer) handleStreamError(err error) {
	logging.Logger.Errorf("Event ID: SNAPSHOT_STREAM_ERROR, Description: Conversation stream failed: %v", err)
	s.mu.Lock()
	s.conversations = nil
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Synchronizer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Conversations returns a deep copy of the mirror.
func (s *Synchronizer) Conversations() []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Conversation, len(s.conversations))
	for i, conversation := range s.conversations {
		out[i] = conversation.Clone()
	}
	return out
}

func (s *Synchronizer) Conversation(id string) (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.IndexFunc(s.conversations, func(c models.Conversation) bool { return c.ID == id })
	if idx < 0 {
		return models.Conversation{}, false
	}
	return s.conversations[idx].Clone(), true
}

// EnsureDirectConversation returns the direct thread for the unordered pair,
// creating it on first contact. No two non-group conversations may share the
// same pair: the mirror and then the backend are consulted before creating.
func (s *Synchronizer) EnsureDirectConversation(ctx context.Context, selfID, otherID string) (models.Conversation, error) {
	if selfID == otherID {
		return models.Conversation{}, fmt.Errorf("a direct conversation needs two distinct participants")
	}

	s.mu.Lock()
	idx := slices.IndexFunc(s.conversations, func(c models.Conversation) bool { return c.HasParticipants(selfID, otherID) })
	if idx >= 0 {
		existing := s.conversations[idx].Clone()
		s.mu.Unlock()
		return existing, nil
	}
	s.mu.Unlock()

	var candidates []models.Conversation
	filters := []docstore.Filter{{Field: "participants", Op: "array-contains", Value: selfID}}
	if err := s.store.Query(ctx, ConversationsCollection, filters, nil, &candidates); err != nil {
		return models.Conversation{}, fmt.Errorf("failed to look up conversations: %w", err)
	}
	for _, candidate := range candidates {
		if candidate.HasParticipants(selfID, otherID) {
			return candidate, nil
		}
	}

	conversation := models.Conversation{
		ID:            uuid.New().String(),
		Participants:  []string{selfID, otherID},
		IsGroup:       false,
		LastMessageAt: time.Now(),
	}
	if err := s.store.Set(ctx, ConversationsCollection, conversation.ID, conversation); err != nil {
		return models.Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conversation, nil
}

// CreateGroupConversation starts a named group thread.
func (s *Synchronizer) CreateGroupConversation(ctx context.Context, name string, participants []string) (models.Conversation, error) {
	if name == "" {
		return models.Conversation{}, fmt.Errorf("a group conversation requires a name")
	}
	if len(participants) < 2 {
		return models.Conversation{}, fmt.Errorf("a group conversation requires at least two participants")
	}

	conversation := models.Conversation{
		ID:            uuid.New().String(),
		Participants:  append([]string(nil), participants...),
		IsGroup:       true,
		Name:          name,
		LastMessageAt: time.Now(),
	}
	if err := s.store.Set(ctx, ConversationsCollection, conversation.ID, conversation); err != nil {
		return models.Conversation{}, fmt.Errorf("failed to create group conversation: %w", err)
	}
	return conversation, nil
}

// SendMessage appends optimistically at the end of the thread, then writes
// the full message list remotely. A second send before the first confirms
// doesn't block. If the remote write fails outright the message is kept in
// the sender's view marked local-only; it is not retried automatically.
func (s *Synchronizer) SendMessage(ctx context.Context, conversationID string, sender models.Member, content string) (models.Message, error) {
	message := models.Message{
		ID:         uuid.New().String(),
		SenderID:   sender.ID,
		SenderName: sender.Name,
		Content:    content,
		SentAt:     time.Now(),
	}

	s.mu.Lock()
	idx := slices.IndexFunc(s.conversations, func(c models.Conversation) bool { return c.ID == conversationID })
	if idx >= 0 {
		s.conversations[idx].Messages = append(s.conversations[idx].Messages, message)
		s.conversations[idx].LastMessageAt = message.SentAt
	}
	s.mu.Unlock()

	if err := s.persistMessage(ctx, conversationID, message); err != nil {
		s.markLocalOnly(conversationID, message.ID)
		logging.Logger.Warnf("Event ID: MESSAGE_SEND_FAILED, Description: Message %s kept local-only, remote write failed: %v", message.ID, err)
		message.LocalOnly = true
		return message, fmt.Errorf("message kept locally but not delivered: %w", err)
	}
	return message, nil
}

func (s *Synchronizer) persistMessage(ctx context.Context, conversationID string, message models.Message) error {
	var fresh models.Conversation
	if err := s.store.Get(ctx, ConversationsCollection, conversationID, &fresh); err != nil {
		return err
	}
	messages := append(append([]models.Message(nil), fresh.Messages...), message)
	patch := map[string]interface{}{
		"messages":      messages,
		"lastMessageAt": message.SentAt,
	}
	return s.store.Update(ctx, ConversationsCollection, conversationID, patch)
}

func (s *Synchronizer) markLocalOnly(conversationID, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.IndexFunc(s.conversations, func(c models.Conversation) bool { return c.ID == conversationID })
	if idx < 0 {
		return
	}
	messages := s.conversations[idx].Messages
	msgIdx := slices.IndexFunc(messages, func(m models.Message) bool { return m.ID == messageID })
	if msgIdx >= 0 {
		messages[msgIdx].LocalOnly = true
	}
}

// ClearMessages bulk-clears a thread's history. Individual messages are
// never edited or deleted.
func (s *Synchronizer) ClearMessages(ctx context.Context, conversationID string) error {
	patch := map[string]interface{}{"messages": []models.Message{}}
	if err := s.store.Update(ctx, ConversationsCollection, conversationID, patch); err != nil {
		return fmt.Errorf("failed to clear conversation %s: %w", conversationID, err)
	}

	s.mu.Lock()
	idx := slices.IndexFunc(s.conversations, func(c models.Conversation) bool { return c.ID == conversationID })
	if idx >= 0 {
		s.conversations[idx].Messages = nil
	}
	s.mu.Unlock()
	return nil
}
