package metadata

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/tacticallink/internal/dbx"
)

// CredentialKey is the fixed key under which the access token is stored.
const CredentialKey = "access_token"

// CredentialStore persists the session credential across restarts.
type CredentialStore struct {
	db   *sql.DB
	repo func(dbx.DBTX) Repository
}

func NewCredentialStore(db *sql.DB) *CredentialStore {
	return &CredentialStore{
		db:   db,
		repo: func(tx dbx.DBTX) Repository { return NewSQLiteRepository(tx) },
	}
}

// Load returns the persisted credential, or "" with ok=false if none.
func (s *CredentialStore) Load(ctx context.Context) (token string, ok bool, err error) {
	v, err := s.repo(s.db).Get(ctx, CredentialKey)
	if err != nil {
		return "", false, fmt.Errorf("load credential: %w", err)
	}
	if len(v) == 0 {
		return "", false, nil
	}
	return string(v), true, nil
}

// Save replaces whatever session data is stored with token, atomically.
func (s *CredentialStore) Save(ctx context.Context, token string) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repo(tx)
		if err := repo.Clear(ctx); err != nil {
			return err
		}
		return repo.Set(ctx, CredentialKey, []byte(token))
	})
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// Clear removes the credential. Clearing an empty store is not an error.
func (s *CredentialStore) Clear(ctx context.Context) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repo(tx).Clear(ctx)
	})
	if err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}
