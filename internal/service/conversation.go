// Package service implements the Conversation Service (C7): conversation
// CRUD and the flat history read conversation clients use to rebuild the
// DAG client-side (spec §4.7).
//
// Grounded on Danor93-Articles-Chat/internal/handlers/conversations.go's
// handler shape, generalized from a flat per-conversation message table
// to the two-store (ConversationStore + MessageStore) split and from
// ownership-via-auth-middleware to explicit (id, user_id) scoping on
// every store call.
package service

import (
	"context"

	"github.com/ZM-BAD/dag-chat/internal/dagengine"
	"github.com/ZM-BAD/dag-chat/internal/errors"
	"github.com/ZM-BAD/dag-chat/internal/models"
	"github.com/ZM-BAD/dag-chat/internal/store"
)

type ConversationService struct {
	convStore store.ConversationStore
	msgStore  store.MessageStore
}

func NewConversationService(convStore store.ConversationStore, msgStore store.MessageStore) *ConversationService {
	return &ConversationService{convStore: convStore, msgStore: msgStore}
}

// Create makes a new, messageless conversation — the client must follow
// up with POST /chat to create the root message (spec §4.7).
func (s *ConversationService) Create(ctx context.Context, userID, model, message string) (*models.CreateConversationResponse, error) {
	conv, err := s.convStore.Create(ctx, userID, model)
	if err != nil {
		return nil, err
	}
	return &models.CreateConversationResponse{ConversationID: conv.ID}, nil
}

func (s *ConversationService) List(ctx context.Context, userID string, page, pageSize int) (*models.Page, error) {
	convs, total, err := s.convStore.List(ctx, userID, page, pageSize)
	if err != nil {
		return nil, err
	}
	return &models.Page{List: convs, Total: total, Page: page, PageSize: pageSize}, nil
}

// History returns every message in the conversation as a flat list; the
// client reconstructs the DAG from parent_ids/children itself (spec §4.7,
// §12 supplemented edge symmetry note). parent_ids is authoritative, so
// children sets are regenerated from it on every read rather than trusted
// as stored — this is where drift from a partially-failed AppendChild
// gets self-healed before the client ever sees it.
func (s *ConversationService) History(ctx context.Context, conversationID string) ([]models.Message, error) {
	if _, err := s.convStore.Get(ctx, conversationID); err != nil {
		return nil, err
	}
	nodes, err := s.msgStore.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return dagengine.RegenerateChildren(nodes), nil
}

func (s *ConversationService) Rename(ctx context.Context, conversationID, userID, newTitle string) (*models.Conversation, error) {
	return s.convStore.Rename(ctx, conversationID, userID, newTitle)
}

// Delete cascades to messages first; if that fails, the conversation row
// is retained so a retry can complete the deletion (spec §4.7 atomicity
// requirement).
func (s *ConversationService) Delete(ctx context.Context, conversationID, userID string) error {
	if _, err := s.convStore.Get(ctx, conversationID); err != nil {
		return err
	}

	if err := s.msgStore.DeleteByConversation(ctx, conversationID); err != nil {
		return errors.Wrap(err, errors.ErrPartialWrite)
	}

	return s.convStore.Delete(ctx, conversationID, userID)
}
