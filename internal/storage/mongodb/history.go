package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/glossbook/auth-backend/internal/domain"
)

// LoginHistoryStore implements MongoDB login history storage
type LoginHistoryStore struct {
	collection *mongo.Collection
}

func (s *LoginHistoryStore) Append(ctx context.Context, record *domain.LoginRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	_, err := s.collection.InsertOne(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to append login record: %w", err)
	}
	return nil
}

func (s *LoginHistoryStore) GetByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.LoginRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list login records: %w", err)
	}
	defer cursor.Close(ctx)

	records := make([]*domain.LoginRecord, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode login records: %w", err)
	}
	return records, nil
}
