package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ZM-BAD/dag-chat/internal/errors"
	"github.com/ZM-BAD/dag-chat/internal/models"
)

// ConversationStore is the relational metadata store (C2). Every write is
// scoped by (id, user_id) to prevent cross-user mutation (spec §4.2).
type ConversationStore interface {
	Create(ctx context.Context, userID, initialModel string) (*models.Conversation, error)
	Get(ctx context.Context, id string) (*models.Conversation, error)
	List(ctx context.Context, userID string, page, pageSize int) ([]models.Conversation, int, error)
	Rename(ctx context.Context, id, userID, title string) (*models.Conversation, error)
	Delete(ctx context.Context, id, userID string) error
	Touch(ctx context.Context, id, model string) error
	SetTitle(ctx context.Context, id, title string) error
}

// PostgresConversationStore is the Postgres-backed ConversationStore,
// grounded on Danor93-Articles-Chat's internal/database/conversation.go.
type PostgresConversationStore struct {
	db *PostgresDB
}

func NewPostgresConversationStore(db *PostgresDB) *PostgresConversationStore {
	return &PostgresConversationStore{db: db}
}

func (s *PostgresConversationStore) Create(ctx context.Context, userID, initialModel string) (*models.Conversation, error) {
	id := uuid.New().String()
	modelsList := pq.StringArray{}
	if initialModel != "" {
		modelsList = pq.StringArray{initialModel}
	}

	query := `
		INSERT INTO conversations (id, user_id, title, models)
		VALUES ($1, $2, '', $3)
		RETURNING id, user_id, title, models, created_at, updated_at
	`

	var conv models.Conversation
	var convModels pq.StringArray
	err := s.db.QueryRowContext(ctx, query, id, userID, modelsList).Scan(
		&conv.ID, &conv.UserID, &conv.Title, &convModels, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreError)
	}
	conv.Models = []string(convModels)

	return &conv, nil
}

func (s *PostgresConversationStore) Get(ctx context.Context, id string) (*models.Conversation, error) {
	query := `
		SELECT id, user_id, title, models, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`

	var conv models.Conversation
	var convModels pq.StringArray
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&conv.ID, &conv.UserID, &conv.Title, &convModels, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New(errors.ErrUnknownConversation, "conversation not found")
		}
		return nil, errors.Wrap(err, errors.ErrStoreError)
	}
	conv.Models = []string(convModels)

	return &conv, nil
}

func (s *PostgresConversationStore) List(ctx context.Context, userID string, page, pageSize int) ([]models.Conversation, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrStoreError)
	}

	query := `
		SELECT id, user_id, title, models, created_at, updated_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, userID, pageSize, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrStoreError)
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		var convModels pq.StringArray
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &convModels, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrStoreError)
		}
		conv.Models = []string(convModels)
		out = append(out, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrStoreError)
	}

	return out, total, nil
}

func (s *PostgresConversationStore) Rename(ctx context.Context, id, userID, title string) (*models.Conversation, error) {
	query := `
		UPDATE conversations
		SET title = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, title, models, created_at, updated_at
	`

	var conv models.Conversation
	var convModels pq.StringArray
	err := s.db.QueryRowContext(ctx, query, id, userID, title).Scan(
		&conv.ID, &conv.UserID, &conv.Title, &convModels, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New(errors.ErrUnknownConversation, "conversation not found")
		}
		return nil, errors.Wrap(err, errors.ErrStoreError)
	}
	conv.Models = []string(convModels)

	return &conv, nil
}

func (s *PostgresConversationStore) Delete(ctx context.Context, id, userID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return errors.Wrap(err, errors.ErrStoreError)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.ErrStoreError)
	}
	if rowsAffected == 0 {
		return errors.New(errors.ErrUnknownConversation, "conversation not found")
	}

	return nil
}

// Touch bumps updated_at and appends model to the models array if it is
// not already present (spec §3 invariant 7: first-use order).
func (s *PostgresConversationStore) Touch(ctx context.Context, id, model string) error {
	query := `
		UPDATE conversations
		SET updated_at = NOW(),
		    models = CASE WHEN $2 = ANY(models) THEN models ELSE array_append(models, $2) END
		WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, query, id, model)
	if err != nil {
		return errors.Wrap(err, errors.ErrStoreError)
	}
	return nil
}

func (s *PostgresConversationStore) SetTitle(ctx context.Context, id, title string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE conversations SET title = $2, updated_at = NOW() WHERE id = $1`, id, title)
	if err != nil {
		return errors.Wrap(err, errors.ErrStoreError)
	}
	return nil
}

// GenerateFallbackTitle truncates a message to a safe conversation title
// when the auto-title job has not (yet) produced one.
func GenerateFallbackTitle(firstMessage string) string {
	const maxLength = 64
	if firstMessage == "" {
		return ""
	}
	r := []rune(firstMessage)
	if len(r) > maxLength {
		return string(r[:maxLength])
	}
	return firstMessage
}
