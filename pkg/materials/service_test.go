package materials

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telesis-app/telesis/pkg/storage/postgres"
)

// memBlobStore is an in-memory BlobStore for tests
type memBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{objects: make(map[string][]byte)}
}

func (m *memBlobStore) Put(_ context.Context, key string, content io.Reader, _ string) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memBlobStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memBlobStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memBlobStore) HealthCheck(context.Context) error { return nil }

type failingBlobStore struct{ memBlobStore }

func (f *failingBlobStore) Put(context.Context, string, io.Reader, string) error {
	return errors.New("upload failed")
}

func newMockService(t *testing.T, blobs BlobStore) (*PostgresService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewPostgresService(postgres.NewConnectionManagerFromDB(db), blobs, nil), mock
}

func TestServiceCreate_WithContent(t *testing.T) {
	blobs := newMemBlobStore()
	service, mock := newMockService(t, blobs)

	mock.ExpectQuery("INSERT INTO materials").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
			AddRow(time.Now(), time.Now()))

	content := []byte("lesson body")
	m, err := service.Create(context.Background(), "org_a", "user_1",
		CreateMaterialRequest{Title: "Lesson", ContentType: "text/plain"}, content)
	require.NoError(t, err)

	assert.Equal(t, StorageKey("org_a", content), m.StorageKey)
	assert.Equal(t, int64(len(content)), m.SizeBytes)

	stored, ok := blobs.objects[m.StorageKey]
	require.True(t, ok, "content should be uploaded")
	assert.Equal(t, content, stored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceCreate_UploadFailureAborts(t *testing.T) {
	service, mock := newMockService(t, &failingBlobStore{})

	_, err := service.Create(context.Background(), "org_a", "user_1",
		CreateMaterialRequest{Title: "Lesson"}, []byte("body"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store material content")

	// The insert never runs when the upload fails
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceCreate_NoContentSkipsBlobStore(t *testing.T) {
	service, mock := newMockService(t, &failingBlobStore{})

	mock.ExpectQuery("INSERT INTO materials").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
			AddRow(time.Now(), time.Now()))

	m, err := service.Create(context.Background(), "org_a", "user_1",
		CreateMaterialRequest{Title: "Link only"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "", m.StorageKey)
}

func TestServiceDelete_RemovesBlob(t *testing.T) {
	blobs := newMemBlobStore()
	blobs.objects["materials/org_a/sha256/ab/cdef"] = []byte("body")
	service, mock := newMockService(t, blobs)

	mock.ExpectQuery("DELETE FROM materials").
		WithArgs(sqlmock.AnyArg(), "org_a").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).
			AddRow("materials/org_a/sha256/ab/cdef"))

	err := service.Delete(context.Background(), "org_a", uuid.New())
	require.NoError(t, err)
	assert.Equal(t, []string{"materials/org_a/sha256/ab/cdef"}, blobs.deleted)
}

func TestServiceDelete_NotFound(t *testing.T) {
	service, mock := newMockService(t, nil)

	mock.ExpectQuery("DELETE FROM materials").
		WithArgs(sqlmock.AnyArg(), "org_other").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}))

	err := service.Delete(context.Background(), "org_other", uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorageKey(t *testing.T) {
	key := StorageKey("org_a", []byte("content"))

	if !strings.HasPrefix(key, "materials/org_a/sha256/") {
		t.Errorf("StorageKey prefix wrong: %s", key)
	}

	// Content-addressable: same content, same key
	if key != StorageKey("org_a", []byte("content")) {
		t.Error("StorageKey should be deterministic")
	}
	if key == StorageKey("org_b", []byte("content")) {
		t.Error("StorageKey should be scoped by organization")
	}
	if key == StorageKey("org_a", []byte("other")) {
		t.Error("StorageKey should vary with content")
	}
}
