package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/JonMunkholm/catalog-import/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx records statements and returns canned results. Methods not
// overridden panic through the nil embedded interface.
type fakeTx struct {
	pgx.Tx

	productRows int64
	stockErr    error
	commitErr   error

	statements []string
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.statements = append(f.statements, sql)
	if strings.Contains(sql, "INSERT INTO products") {
		if f.productRows == 0 {
			return pgconn.NewCommandTag("INSERT 0 0"), nil
		}
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	if f.stockErr != nil {
		return pgconn.CommandTag{}, f.stockErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeTx) Commit(context.Context) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if f.committed {
		return pgx.ErrTxClosed
	}
	f.rolledBack = true
	return nil
}

type fakeBeginner struct {
	tx  *fakeTx
	err error
}

func (b *fakeBeginner) Begin(context.Context) (pgx.Tx, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.tx, nil
}

func testPair() (core.Product, core.Stock) {
	p := core.Product{ID: "p-1", Title: "Mug", Description: "Ceramic", Price: 9.5}
	return p, core.Stock{ProductID: p.ID, Count: 3}
}

func TestPostgres_CreateProduct(t *testing.T) {
	tests := []struct {
		name         string
		tx           *fakeTx
		beginErr     error
		wantErr      error
		wantCommit   bool
		wantRollback bool
		wantStmts    int
	}{
		{
			name:       "commits both inserts",
			tx:         &fakeTx{productRows: 1},
			wantCommit: true,
			wantStmts:  2,
		},
		{
			name:         "existing identity rolls back",
			tx:           &fakeTx{productRows: 0},
			wantErr:      core.ErrProductExists,
			wantRollback: true,
			wantStmts:    1,
		},
		{
			name:         "stock failure rolls back product",
			tx:           &fakeTx{productRows: 1, stockErr: errors.New("check violation")},
			wantRollback: true,
			wantStmts:    2,
		},
		{
			name:     "begin failure",
			tx:       &fakeTx{},
			beginErr: errors.New("pool closed"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewPostgres(&fakeBeginner{tx: tt.tx, err: tt.beginErr})
			p, st := testPair()

			err := s.CreateProduct(context.Background(), p, st)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantCommit:
				assert.NoError(t, err)
			default:
				assert.Error(t, err)
			}
			assert.Equal(t, tt.wantCommit, tt.tx.committed)
			assert.Equal(t, tt.wantRollback, tt.tx.rolledBack)
			assert.Len(t, tt.tx.statements, tt.wantStmts)
		})
	}
}

type fakeExecer struct{ sql string }

func (f *fakeExecer) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.sql = sql
	return pgconn.CommandTag{}, nil
}

func TestMigrate(t *testing.T) {
	e := &fakeExecer{}
	require.NoError(t, Migrate(context.Background(), e))
	assert.Contains(t, e.sql, "CREATE TABLE IF NOT EXISTS products")
	assert.Contains(t, e.sql, "REFERENCES products (id)")
	assert.Contains(t, e.sql, "CHECK (count >= 0)")
}

func TestMemory_CreateProduct(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p, st := testPair()

	require.NoError(t, m.CreateProduct(ctx, p, st))
	assert.ErrorIs(t, m.CreateProduct(ctx, p, st), core.ErrProductExists)

	got, ok := m.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, 3, got.Count)
	assert.Equal(t, "Mug", got.Title)

	products, stocks := m.Counts()
	assert.Equal(t, 1, products)
	assert.Equal(t, 1, stocks)
}

func TestMemory_FailLeavesNothing(t *testing.T) {
	m := NewMemory()
	m.Fail = func(core.Product) error { return errors.New("down") }
	p, st := testPair()

	assert.Error(t, m.CreateProduct(context.Background(), p, st))
	products, stocks := m.Counts()
	assert.Zero(t, products)
	assert.Zero(t, stocks)
}
