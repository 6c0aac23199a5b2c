package objectstore

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopySource(t *testing.T) {
	tests := []struct {
		name   string
		bucket string
		key    string
		want   string
	}{
		{"plain", "b", "uploaded/file.csv", "b/uploaded/file.csv"},
		{"space", "b", "uploaded/my file.csv", "b/uploaded/my%20file.csv"},
		{"plus", "b", "uploaded/a+b.csv", "b/uploaded/a+b.csv"},
		{"percent", "b", "uploaded/100%.csv", "b/uploaded/100%25.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, copySource(tt.bucket, tt.key))
		})
	}
}

func TestMemory_OpenMissing(t *testing.T) {
	m := NewMemory()
	_, _, err := m.Open(context.Background(), "b", "nope.csv")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_OpenCopyDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Put("b", "uploaded/x.csv", []byte("title\nA\n"))

	rc, size, err := m.Open(ctx, "b", "uploaded/x.csv")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "title\nA\n", string(data))
	assert.EqualValues(t, 8, size)

	require.NoError(t, m.Copy(ctx, "b", "uploaded/x.csv", "parsed/x.csv"))
	require.NoError(t, m.Delete(ctx, "b", "uploaded/x.csv"))
	assert.Equal(t, []string{"parsed/x.csv"}, m.Keys("b"))

	assert.ErrorIs(t, m.Copy(ctx, "b", "uploaded/x.csv", "parsed/y.csv"), ErrNotFound)
	assert.NoError(t, m.Delete(ctx, "b", "uploaded/x.csv"))
}

func TestMemory_FailHook(t *testing.T) {
	boom := errors.New("boom")
	m := NewMemory()
	m.Put("b", "k", []byte("x"))
	m.Fail = func(op, _, _ string) error {
		if op == "delete" {
			return boom
		}
		return nil
	}

	assert.NoError(t, m.Copy(context.Background(), "b", "k", "k2"))
	assert.ErrorIs(t, m.Delete(context.Background(), "b", "k"), boom)
}
