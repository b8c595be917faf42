package dbx

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openKV(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE kv (key TEXT PRIMARY KEY, value BLOB)`)
	require.NoError(t, err)
	return db
}

func keys(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&n))
	return n
}

func TestWithTx(t *testing.T) {
	tests := []struct {
		name     string
		fn       func(ctx context.Context, tx DBTX) error
		wantErr  bool
		wantRows int
	}{
		{
			name: "commit both writes",
			fn: func(ctx context.Context, tx DBTX) error {
				if _, err := tx.ExecContext(ctx, `INSERT INTO kv VALUES ('access_token', 'tok')`); err != nil {
					return err
				}
				_, err := tx.ExecContext(ctx, `INSERT INTO kv VALUES ('username', 'alice')`)
				return err
			},
			wantRows: 2,
		},
		{
			name: "second write fails, first rolled back",
			fn: func(ctx context.Context, tx DBTX) error {
				if _, err := tx.ExecContext(ctx, `INSERT INTO kv VALUES ('access_token', 'tok')`); err != nil {
					return err
				}
				return errors.New("disk full")
			},
			wantErr:  true,
			wantRows: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openKV(t)
			err := WithTx(context.Background(), db, nil, tt.fn)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantRows, keys(t, db))
		})
	}
}

func TestWithTx_PanicRollsBackAndPropagates(t *testing.T) {
	db := openKV(t)

	assert.PanicsWithValue(t, "kaput", func() {
		_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO kv VALUES ('k', 'v')`)
			require.NoError(t, err)
			panic("kaput")
		})
	})
	assert.Equal(t, 0, keys(t, db))
}

func TestWithTx_BeginError(t *testing.T) {
	db := openKV(t)
	require.NoError(t, db.Close())

	err := WithTx(context.Background(), db, nil, func(context.Context, DBTX) error { return nil })
	require.Error(t, err)
}

func TestWithTx_CommitErrorReturned(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	commitErr := errors.New("commit failed")
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO kv`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(commitErr)

	err = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO kv VALUES ('k', 'v')`)
		return err
	})
	require.ErrorIs(t, err, commitErr)
	require.NoError(t, mock.ExpectationsWereMet())
}
