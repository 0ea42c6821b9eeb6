package mongodb

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glossbook/auth-backend/internal/domain"
	"github.com/glossbook/auth-backend/internal/storage"
	"github.com/glossbook/auth-backend/pkg/config"
)

func getTestMongoURI() string {
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	return uri
}

func skipIfNoMongo(t *testing.T) *Store {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := &config.MongoDBConfig{
		URI:      getTestMongoURI(),
		Database: "auth_backend_test",
		Timeout:  5,
	}

	store, err := NewStore(ctx, cfg)
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
		return nil
	}

	t.Cleanup(func() {
		ctx := context.Background()
		_ = store.database.Drop(ctx)
		_ = store.Close()
	})

	return store
}

func TestUserStore_RoundTrip(t *testing.T) {
	store := skipIfNoMongo(t)
	ctx := context.Background()

	user := &domain.User{
		ID:        domain.NewUserID(),
		Phone:     "+15551234567",
		Username:  "user_4567",
		FirstName: "Ada",
		Role:      domain.RoleClient,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	require.NoError(t, store.Users().Create(ctx, user))

	got, err := store.Users().GetByPhone(ctx, "+15551234567")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "Ada", got.FirstName)

	dup := &domain.User{ID: domain.NewUserID(), Phone: "+15551234567", Username: "user_other"}
	err = store.Users().Create(ctx, dup)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestCredentialStore_BumpCounterConditional(t *testing.T) {
	store := skipIfNoMongo(t)
	ctx := context.Background()
	owner := domain.NewUserID()

	cred := &domain.Credential{
		CredentialID: "bW9uZ28tY3JlZA",
		OwnerID:      owner,
		PublicKey:    []byte{0x01},
		Counter:      10,
	}
	require.NoError(t, store.Credentials().Create(ctx, cred))

	now := time.Now()
	require.NoError(t, store.Credentials().BumpCounter(ctx, cred.CredentialID, 11, now))

	err := store.Credentials().BumpCounter(ctx, cred.CredentialID, 11, now)
	assert.ErrorIs(t, err, storage.ErrStaleCounter)

	err = store.Credentials().BumpCounter(ctx, cred.CredentialID, 5, now)
	assert.ErrorIs(t, err, storage.ErrStaleCounter)

	err = store.Credentials().BumpCounter(ctx, "missing", 99, now)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := store.Credentials().GetByID(ctx, cred.CredentialID)
	require.NoError(t, err)
	assert.Equal(t, uint32(11), got.Counter)
	assert.NotNil(t, got.LastUsedAt)
}

func TestChallengeStore_ConsumeAtomic(t *testing.T) {
	store := skipIfNoMongo(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.Challenges().Create(ctx, &domain.Challenge{
		ID:        domain.NewChallengeID(),
		Subject:   "+15551234567",
		Type:      domain.ChallengeRegistration,
		Value:     "dGVzdC1jaGFsbGVuZ2U",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Minute),
	}))

	got, err := store.Challenges().Consume(ctx, "+15551234567", domain.ChallengeRegistration)
	require.NoError(t, err)
	assert.Equal(t, "dGVzdC1jaGFsbGVuZ2U", got.Value)

	_, err = store.Challenges().Consume(ctx, "+15551234567", domain.ChallengeRegistration)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestChallengeStore_ConsumePrefersNewest(t *testing.T) {
	store := skipIfNoMongo(t)
	ctx := context.Background()

	now := time.Now()
	older := &domain.Challenge{
		ID: domain.NewChallengeID(), Subject: "s", Type: domain.ChallengeAuthentication,
		Value: "older", CreatedAt: now.Add(-time.Minute), ExpiresAt: now.Add(time.Minute),
	}
	newer := &domain.Challenge{
		ID: domain.NewChallengeID(), Subject: "s", Type: domain.ChallengeAuthentication,
		Value: "newer", CreatedAt: now, ExpiresAt: now.Add(time.Minute),
	}
	require.NoError(t, store.Challenges().Create(ctx, older))
	require.NoError(t, store.Challenges().Create(ctx, newer))

	got, err := store.Challenges().Consume(ctx, "s", domain.ChallengeAuthentication)
	require.NoError(t, err)
	assert.Equal(t, "newer", got.Value)
}

func TestLoginHistoryStore_NewestFirst(t *testing.T) {
	store := skipIfNoMongo(t)
	ctx := context.Background()
	user := domain.NewUserID()

	for i, method := range []string{"passkey", "passkey", "token"} {
		require.NoError(t, store.LoginHistory().Append(ctx, &domain.LoginRecord{
			ID:        domain.NewChallengeID(),
			UserID:    user,
			Method:    method,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	records, err := store.LoginHistory().GetByUser(ctx, user, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "token", records[0].Method)
}
