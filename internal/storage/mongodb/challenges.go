package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/glossbook/auth-backend/internal/domain"
	"github.com/glossbook/auth-backend/internal/storage"
)

// ChallengeStore implements MongoDB challenge storage
type ChallengeStore struct {
	collection *mongo.Collection
}

func (s *ChallengeStore) Create(ctx context.Context, challenge *domain.Challenge) error {
	_, err := s.collection.InsertOne(ctx, challenge)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create challenge: %w", err)
	}
	return nil
}

// Consume removes and returns the newest live challenge for a subject
// and ceremony type. FindOneAndDelete is a single server-side operation,
// so concurrent consumers racing on the same challenge cannot both
// receive it.
func (s *ChallengeStore) Consume(ctx context.Context, subject string, typ domain.ChallengeType) (*domain.Challenge, error) {
	opts := options.FindOneAndDelete().SetSort(bson.D{{Key: "created_at", Value: -1}})
	filter := bson.M{
		"subject":    subject,
		"type":       typ,
		"expires_at": bson.M{"$gt": time.Now()},
	}

	var challenge domain.Challenge
	err := s.collection.FindOneAndDelete(ctx, filter, opts).Decode(&challenge)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to consume challenge: %w", err)
	}
	return &challenge, nil
}

func (s *ChallengeStore) DeleteExpired(ctx context.Context) error {
	_, err := s.collection.DeleteMany(ctx, bson.M{
		"expires_at": bson.M{"$lt": time.Now()},
	})
	if err != nil {
		return fmt.Errorf("failed to delete expired challenges: %w", err)
	}
	return nil
}
