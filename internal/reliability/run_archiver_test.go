package reliability

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/mcvqe/internal/events"
	testingpkg "github.com/aristath/mcvqe/internal/testing"
)

type memoryObject struct {
	data     []byte
	modified time.Time
}

// memoryStore is an in-memory ObjectStore
type memoryStore struct {
	mu        sync.Mutex
	objects   map[string]memoryObject
	uploadErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string]memoryObject)}
}

func (m *memoryStore) Upload(ctx context.Context, key string, body io.Reader, size int64) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: data, modified: time.Now()}
	return nil
}

func (m *memoryStore) List(ctx context.Context, prefix string) ([]types.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Object
	for key, obj := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, types.Object{
			Key:          aws.String(key),
			Size:         aws.Int64(int64(len(obj.data))),
			LastModified: aws.Time(obj.modified),
		})
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].Key < *out[j].Key })
	return out, nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryStore) put(key string, age time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: []byte("x"), modified: time.Now().Add(-age)}
}

func (m *memoryStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func TestRunArchiver_ObjectKey(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "runs/abc.msgpack"},
		{"runs", "runs/abc.msgpack"},
		{"/archive/mcvqe/", "archive/mcvqe/abc.msgpack"},
	}
	for _, tt := range tests {
		a := NewRunArchiver(newMemoryStore(), "bucket", tt.prefix, nil, testLogger())
		assert.Equal(t, tt.want, a.ObjectKey("abc"), tt.prefix)
	}
}

func TestRunArchiver_Archive(t *testing.T) {
	store := newMemoryStore()
	emitter := &testingpkg.RecordingEmitter{}
	a := NewRunArchiver(store, "results", "", emitter, testLogger())

	require.NoError(t, a.Archive(context.Background(), "run-1", []byte{0x81, 0xa1, 0x61, 0x01}))

	assert.Equal(t, []string{"runs/run-1.msgpack"}, store.keys())
	require.Equal(t, []events.EventType{events.RunArchived}, emitter.Types())
	data, ok := emitter.Events()[0].Data.(*events.RunArchivedData)
	require.True(t, ok)
	assert.Equal(t, "run-1", data.RunID)
	assert.Equal(t, "results", data.Bucket)
	assert.Equal(t, "runs/run-1.msgpack", data.Key)
	assert.Equal(t, 4, data.Bytes)
}

func TestRunArchiver_ArchiveErrors(t *testing.T) {
	store := newMemoryStore()
	emitter := &testingpkg.RecordingEmitter{}
	a := NewRunArchiver(store, "results", "", emitter, testLogger())

	assert.Error(t, a.Archive(context.Background(), "", []byte("x")))

	store.uploadErr = errors.New("boom")
	err := a.Archive(context.Background(), "run-1", []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, store.uploadErr)
	assert.Empty(t, emitter.Events())
}

func TestRunArchiver_ListArchives(t *testing.T) {
	store := newMemoryStore()
	store.put("runs/old.msgpack", 48*time.Hour)
	store.put("runs/new.msgpack", time.Hour)
	store.put("runs/nested/skip.msgpack", time.Hour)
	store.put("runs/skip.json", time.Hour)
	store.put("other/x.msgpack", time.Hour)

	a := NewRunArchiver(store, "b", "", nil, testLogger())
	archives, err := a.ListArchives(context.Background())
	require.NoError(t, err)
	require.Len(t, archives, 2)
	assert.Equal(t, "new", archives[0].RunID)
	assert.Equal(t, "old", archives[1].RunID)
	assert.Equal(t, int64(1), archives[0].SizeBytes)
}

func TestRunArchiver_RotateArchives(t *testing.T) {
	store := newMemoryStore()
	for i, age := range []time.Duration{1, 2, 3, 40 * 24, 50 * 24, 5} {
		store.put("runs/r"+string(rune('a'+i))+".msgpack", age*time.Hour)
	}
	a := NewRunArchiver(store, "b", "", nil, testLogger())

	deleted, err := a.RotateArchives(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	deleted, err = a.RotateArchives(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.Equal(t, []string{"runs/ra.msgpack", "runs/rb.msgpack", "runs/rc.msgpack", "runs/rf.msgpack"}, store.keys())
}

func TestRunArchiver_RotateKeepsMinimum(t *testing.T) {
	store := newMemoryStore()
	store.put("runs/a.msgpack", 400*24*time.Hour)
	store.put("runs/b.msgpack", 500*24*time.Hour)
	a := NewRunArchiver(store, "b", "", nil, testLogger())

	deleted, err := a.RotateArchives(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Len(t, store.keys(), 2)
}

func TestNewS3Client(t *testing.T) {
	_, err := NewS3Client(context.Background(), ArchiveConfig{}, testLogger())
	assert.ErrorIs(t, err, ErrArchiveDisabled)
	assert.False(t, ArchiveConfig{}.Enabled())

	client, err := NewS3Client(context.Background(), ArchiveConfig{
		Bucket:          "mcvqe",
		Endpoint:        "http://127.0.0.1:9000",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	}, testLogger())
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, "mcvqe", client.bucket)

	var _ ObjectStore = client
}
