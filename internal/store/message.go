package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ZM-BAD/dag-chat/internal/errors"
	"github.com/ZM-BAD/dag-chat/internal/models"
)

// MessageStore is the document store (C1) holding DAG nodes, keyed by
// opaque ID within a conversation.
type MessageStore interface {
	Insert(ctx context.Context, node *models.Message) (string, error)
	AppendChild(ctx context.Context, parentID, childID string) error
	Get(ctx context.Context, id string) (*models.Message, error)
	GetMany(ctx context.Context, conversationID string, ids []string) (map[string]*models.Message, error)
	DeleteByConversation(ctx context.Context, conversationID string) error
	ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error)
}

// messageDoc mirrors models.Message with bson tags for the nodes
// collection. Unlike GhiaC-Agentize's sessions collection — which carries
// a JSON-in-document fallback for data migrated from an older BSON
// format — this is a fresh collection with no legacy payloads, so fields
// are bson-tagged directly rather than double-encoded.
type messageDoc struct {
	ID             string    `bson:"_id"`
	ConversationID string    `bson:"conversation_id"`
	Role           string    `bson:"role"`
	Content        string    `bson:"content"`
	Reasoning      string    `bson:"reasoning,omitempty"`
	Model          string    `bson:"model,omitempty"`
	ParentIDs      []string  `bson:"parent_ids"`
	Children       []string  `bson:"children"`
	CreatedAt      time.Time `bson:"created_at"`
}

func (d *messageDoc) toModel() *models.Message {
	return &models.Message{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		Role:           models.Role(d.Role),
		Content:        d.Content,
		Reasoning:      d.Reasoning,
		Model:          d.Model,
		ParentIDs:      d.ParentIDs,
		Children:       d.Children,
		CreatedAt:      d.CreatedAt,
	}
}

// MongoMessageStore is the MongoDB-backed MessageStore, grounded on
// GhiaC-Agentize/store/mongodb.go's collection + index setup, generalized
// from session documents to DAG message nodes.
type MongoMessageStore struct {
	collection *mongo.Collection
}

func NewMongoMessageStore(ctx context.Context, m *MongoDB) (*MongoMessageStore, error) {
	collection := m.database.Collection("messages")

	if _, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}},
	}); err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreError)
	}

	if _, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}},
		Options: options.Index(),
	}); err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreError)
	}

	return &MongoMessageStore{collection: collection}, nil
}

// Insert assigns a fresh ID and writes the node. Children starts empty;
// the caller is responsible for following up with AppendChild on each of
// node.ParentIDs — spec §4.1 requires the pair to be observable as a
// single logical update, which the orchestrator achieves by treating
// AppendChild failures after a successful Insert as a PartialWrite (§7),
// logged loudly rather than rolled back (the node itself stays valid).
func (s *MongoMessageStore) Insert(ctx context.Context, node *models.Message) (string, error) {
	id := uuid.New().String()
	doc := messageDoc{
		ID:             id,
		ConversationID: node.ConversationID,
		Role:           string(node.Role),
		Content:        node.Content,
		Reasoning:      node.Reasoning,
		Model:          node.Model,
		ParentIDs:      node.ParentIDs,
		Children:       []string{},
		CreatedAt:      time.Now().UTC(),
	}
	if doc.ParentIDs == nil {
		doc.ParentIDs = []string{}
	}

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return "", errors.Wrap(err, errors.ErrStoreError)
	}

	node.ID = id
	node.CreatedAt = doc.CreatedAt
	node.Children = doc.Children

	return id, nil
}

// AppendChild adds childID to parentID's children set. $addToSet gives
// set-union semantics under concurrent calls, satisfying spec §5's
// "concurrent append_child calls for the same parent must converge to
// set-union semantics."
func (s *MongoMessageStore) AppendChild(ctx context.Context, parentID, childID string) error {
	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": parentID},
		bson.M{"$addToSet": bson.M{"children": childID}},
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrStoreError)
	}
	if result.MatchedCount == 0 {
		return errors.New(errors.ErrUnknownMessage, "parent message not found")
	}
	return nil
}

func (s *MongoMessageStore) Get(ctx context.Context, id string) (*models.Message, error) {
	var doc messageDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, errors.New(errors.ErrUnknownMessage, "message not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreError)
	}
	return doc.toModel(), nil
}

// GetMany batch-fetches nodes; IDs with no matching document are silently
// absent from the result map (spec §4.3.1: unknown IDs are skipped).
func (s *MongoMessageStore) GetMany(ctx context.Context, conversationID string, ids []string) (map[string]*models.Message, error) {
	out := make(map[string]*models.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cursor, err := s.collection.Find(ctx, bson.M{
		"_id":             bson.M{"$in": ids},
		"conversation_id": conversationID,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreError)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc messageDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, errors.ErrStoreError)
		}
		out[doc.ID] = doc.toModel()
	}
	if err := cursor.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreError)
	}

	return out, nil
}

func (s *MongoMessageStore) DeleteByConversation(ctx context.Context, conversationID string) error {
	if _, err := s.collection.DeleteMany(ctx, bson.M{"conversation_id": conversationID}); err != nil {
		return errors.Wrap(err, errors.ErrStoreError)
	}
	return nil
}

func (s *MongoMessageStore) ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	cursor, err := s.collection.Find(ctx,
		bson.M{"conversation_id": conversationID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreError)
	}
	defer cursor.Close(ctx)

	var out []models.Message
	for cursor.Next(ctx) {
		var doc messageDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, errors.ErrStoreError)
		}
		out = append(out, *doc.toModel())
	}
	if err := cursor.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreError)
	}

	return out, nil
}
