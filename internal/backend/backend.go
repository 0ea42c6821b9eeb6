// Package backend selects and constructs the storage implementation
// named by the configuration.
package backend

import (
	"context"
	"fmt"

	"github.com/glossbook/auth-backend/internal/storage"
	"github.com/glossbook/auth-backend/internal/storage/memory"
	"github.com/glossbook/auth-backend/internal/storage/mongodb"
	"github.com/glossbook/auth-backend/pkg/config"
)

// Type defines the type of storage backend
type Type string

const (
	// TypeMemory uses in-memory storage (for testing/development)
	TypeMemory Type = "memory"
	// TypeMongoDB uses MongoDB storage (for production)
	TypeMongoDB Type = "mongodb"
)

// New creates a storage backend based on the configuration
func New(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch Type(cfg.Storage.Type) {
	case TypeMemory, "":
		// Default to memory if not specified
		return memory.NewStore(), nil

	case TypeMongoDB:
		store, err := mongodb.NewStore(ctx, &cfg.Storage.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("failed to create MongoDB backend: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}
