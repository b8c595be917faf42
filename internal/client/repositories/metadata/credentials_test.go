package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tacticallink/internal/dbx"
)

func TestCredentialStore_Lifecycle(t *testing.T) {
	db := setupDB(t)
	s := NewCredentialStore(db)
	ctx := context.Background()

	_, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, "tok-1"))
	require.NoError(t, s.Save(ctx, "tok-2"))

	tok, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-2", tok)

	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx))

	_, ok, err = s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCredentialStore_SaveDropsStaleKeys(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	require.NoError(t, NewSQLiteRepository(db).Set(ctx, "stale", []byte("x")))

	require.NoError(t, NewCredentialStore(db).Save(ctx, "tok"))

	stale, err := NewSQLiteRepository(db).Get(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, stale)

	tok, err := NewSQLiteRepository(db).Get(ctx, CredentialKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("tok"), tok)
}

type stubRepo struct {
	value  []byte
	getErr error
}

func (r *stubRepo) Get(context.Context, string) ([]byte, error) { return r.value, r.getErr }
func (r *stubRepo) Set(_ context.Context, _ string, v []byte) error {
	r.value = v
	return nil
}
func (r *stubRepo) Clear(context.Context) error {
	r.value = nil
	return nil
}

func TestCredentialStore_UsesRepository(t *testing.T) {
	repo := &stubRepo{}
	s := NewCredentialStore(setupDB(t))
	s.repo = func(dbx.DBTX) Repository { return repo }
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "tok"))
	assert.Equal(t, []byte("tok"), repo.value)

	tok, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", tok)

	require.NoError(t, s.Clear(ctx))
	_, ok, err = s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	repo.getErr = errors.New("locked")
	_, _, err = s.Load(ctx)
	assert.ErrorContains(t, err, "load credential")
}

func TestCredentialStore_SaveRollsBackOnSetFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM metadata`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO metadata`).WithArgs(CredentialKey, []byte("tok")).WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err = NewCredentialStore(db).Save(context.Background(), "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save credential")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialStore_LoadError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT value FROM metadata`).WithArgs(CredentialKey).WillReturnError(errors.New("locked"))

	_, _, err = NewCredentialStore(db).Load(context.Background())
	require.ErrorContains(t, err, "load credential")
	require.NoError(t, mock.ExpectationsWereMet())
}
