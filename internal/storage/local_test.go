package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestObjectStore(t *testing.T) (*LocalObjectStore, string) {
	t.Helper()
	dir := t.TempDir()
	objectStore, err := NewLocalObjectStore(dir)
	require.NoError(t, err)
	return objectStore, dir
}

func TestLocalObjectStore_PutObject(t *testing.T) {
	objectStore, baseDir := setupTestObjectStore(t)

	key := "photos/student_1.jpg"
	content := []byte("Test content")

	err := objectStore.PutObject(context.Background(), key, bytes.NewReader(content), "image/jpeg")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(baseDir, "photos", "student_1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestLocalObjectStore_PutObjectOverwrites(t *testing.T) {
	objectStore, _ := setupTestObjectStore(t)
	ctx := context.Background()

	require.NoError(t, objectStore.PutObject(ctx, "a.json", bytes.NewReader([]byte("first")), "application/json"))
	require.NoError(t, objectStore.PutObject(ctx, "a.json", bytes.NewReader([]byte("second")), "application/json"))

	data, err := objectStore.GetObject(ctx, "a.json")
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestLocalObjectStore_GetObject(t *testing.T) {
	objectStore, _ := setupTestObjectStore(t)
	ctx := context.Background()

	content := []byte(`{"detections":[]}`)
	require.NoError(t, objectStore.PutObject(ctx, "rekognition-results/class_a_results.json", bytes.NewReader(content), "application/json"))

	data, err := objectStore.GetObject(ctx, "rekognition-results/class_a_results.json")
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestLocalObjectStore_GetMissingObject(t *testing.T) {
	objectStore, _ := setupTestObjectStore(t)

	_, err := objectStore.GetObject(context.Background(), "does/not/exist")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalObjectStore_ListObjects(t *testing.T) {
	objectStore, _ := setupTestObjectStore(t)
	ctx := context.Background()

	files := map[string]string{
		"photos/student_2.jpg": "22",
		"photos/student_1.jpg": "1",
		"photos/readme.txt":    "notes",
		"videos/class_a.mp4":   "video",
	}
	for key, content := range files {
		require.NoError(t, objectStore.PutObject(ctx, key, bytes.NewReader([]byte(content)), ""))
	}

	objects, err := objectStore.ListObjects(ctx, "photos/")
	require.NoError(t, err)
	assert.Equal(t, []Object{
		{Name: "photos/readme.txt", Size: 5},
		{Name: "photos/student_1.jpg", Size: 1},
		{Name: "photos/student_2.jpg", Size: 2},
	}, objects)

	all, err := objectStore.ListObjects(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	none, err := objectStore.ListObjects(ctx, "missing/")
	require.NoError(t, err)
	assert.Empty(t, none)
}
