package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process object store keyed by bucket and key.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// Fail, when set, is consulted before each operation. A non-nil return
	// is returned as the operation's error.
	Fail func(op, bucket, key string) error
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func objectID(bucket, key string) string { return bucket + "/" + key }

// Put stores data under bucket/key, replacing any existing object.
func (m *Memory) Put(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectID(bucket, key)] = append([]byte(nil), data...)
}

// Get returns a copy of the object and whether it exists.
func (m *Memory) Get(bucket, key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[objectID(bucket, key)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Keys lists the keys stored in bucket in sorted order.
func (m *Memory) Keys(bucket string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix := bucket + "/"
	var keys []string
	for id := range m.objects {
		if len(id) > len(prefix) && id[:len(prefix)] == prefix {
			keys = append(keys, id[len(prefix):])
		}
	}
	sort.Strings(keys)
	return keys
}

func (m *Memory) fail(op, bucket, key string) error {
	if m.Fail == nil {
		return nil
	}
	return m.Fail(op, bucket, key)
}

// Open returns a reader over a snapshot of the object.
func (m *Memory) Open(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if err := m.fail("open", bucket, key); err != nil {
		return nil, 0, err
	}
	data, ok := m.Get(bucket, key)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

// Copy duplicates srcKey as dstKey.
func (m *Memory) Copy(ctx context.Context, bucket, srcKey, dstKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.fail("copy", bucket, srcKey); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[objectID(bucket, srcKey)]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, srcKey)
	}
	m.objects[objectID(bucket, dstKey)] = data
	return nil
}

// Delete removes the object. Deleting a missing key succeeds.
func (m *Memory) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.fail("delete", bucket, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, objectID(bucket, key))
	return nil
}

// PresignPut returns a fake URL for bucket/key.
func (m *Memory) PresignPut(_ context.Context, bucket, key, _ string, ttl time.Duration) (string, error) {
	if err := m.fail("presign", bucket, key); err != nil {
		return "", err
	}
	return fmt.Sprintf("memory://%s/%s?expires=%d", bucket, key, int64(ttl.Seconds())), nil
}
