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

// CredentialStore implements MongoDB credential storage
type CredentialStore struct {
	collection *mongo.Collection
}

func (s *CredentialStore) Create(ctx context.Context, credential *domain.Credential) error {
	if credential.CreatedAt.IsZero() {
		credential.CreatedAt = time.Now()
	}
	_, err := s.collection.InsertOne(ctx, credential)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) GetByID(ctx context.Context, credentialID string) (*domain.Credential, error) {
	var credential domain.Credential
	err := s.collection.FindOne(ctx, bson.M{"_id": credentialID}).Decode(&credential)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return &credential, nil
}

func (s *CredentialStore) GetAllByOwner(ctx context.Context, ownerID domain.UserID) ([]*domain.Credential, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer cursor.Close(ctx)

	credentials := make([]*domain.Credential, 0)
	if err := cursor.All(ctx, &credentials); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	return credentials, nil
}

func (s *CredentialStore) CountByOwner(ctx context.Context, ownerID domain.UserID) (int64, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{"owner_id": ownerID})
	if err != nil {
		return 0, fmt.Errorf("failed to count credentials: %w", err)
	}
	return count, nil
}

// BumpCounter advances the signature counter with a conditional update:
// the filter requires the stored counter to be strictly below the new
// value, so a stale or replayed assertion matches no document.
func (s *CredentialStore) BumpCounter(ctx context.Context, credentialID string, newCounter uint32, usedAt time.Time) error {
	result, err := s.collection.UpdateOne(
		ctx,
		bson.M{"_id": credentialID, "counter": bson.M{"$lt": newCounter}},
		bson.M{"$set": bson.M{"counter": newCounter, "last_used_at": usedAt}},
	)
	if err != nil {
		return fmt.Errorf("failed to bump counter: %w", err)
	}
	if result.MatchedCount == 0 {
		// Distinguish a missing credential from a stale counter.
		count, err := s.collection.CountDocuments(ctx, bson.M{"_id": credentialID})
		if err != nil {
			return fmt.Errorf("failed to bump counter: %w", err)
		}
		if count == 0 {
			return storage.ErrNotFound
		}
		return storage.ErrStaleCounter
	}
	return nil
}

func (s *CredentialStore) TouchUsed(ctx context.Context, credentialID string, usedAt time.Time) error {
	result, err := s.collection.UpdateOne(
		ctx,
		bson.M{"_id": credentialID},
		bson.M{"$set": bson.M{"last_used_at": usedAt}},
	)
	if err != nil {
		return fmt.Errorf("failed to touch credential: %w", err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *CredentialStore) Rename(ctx context.Context, credentialID string, ownerID domain.UserID, label string) error {
	result, err := s.collection.UpdateOne(
		ctx,
		bson.M{"_id": credentialID, "owner_id": ownerID},
		bson.M{"$set": bson.M{"device_label": label}},
	)
	if err != nil {
		return fmt.Errorf("failed to rename credential: %w", err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *CredentialStore) Delete(ctx context.Context, credentialID string, ownerID domain.UserID) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": credentialID, "owner_id": ownerID})
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	if result.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}
