package filestore

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorderStub struct {
	bytes map[string]int
}

func (r *recorderStub) RecordStored(role string, n int) {
	if r.bytes == nil {
		r.bytes = map[string]int{}
	}
	r.bytes[role] += n
}

func newTestStore(t *testing.T, maxSize int64) (*Store, *recorderStub) {
	t.Helper()
	dir := t.TempDir()
	rec := &recorderStub{}
	s, err := New(Options{
		UploadDir:         filepath.Join(dir, "uploads"),
		ResultDir:         filepath.Join(dir, "results"),
		AllowedExtensions: []string{"png", "JPG", ".jpeg", "webp"},
		MaxFileSize:       maxSize,
		Recorder:          rec,
	}, zap.NewNop())
	require.NoError(t, err)
	return s, rec
}

func TestStore_Allowed(t *testing.T) {
	s, _ := newTestStore(t, 1024)

	tests := []struct {
		name string
		want bool
	}{
		{"cat.png", true},
		{"cat.PNG", true},
		{"cat.Jpg", true},
		{"cat.jpeg", true},
		{"archive.tar.webp", true},
		{"cat.gif", false},
		{"cat", false},
		{"cat.", false},
		{".png", true},
		{"png", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Allowed(tt.name))
		})
	}
}

func TestStore_SaveUpload_NeverOverwrites(t *testing.T) {
	s, rec := newTestStore(t, 1024)

	first, err := s.SaveUpload("photo.PNG", []byte("one"))
	require.NoError(t, err)
	second, err := s.SaveUpload("photo.PNG", []byte("two"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, s.UploadDir(), filepath.Dir(first))
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}\.png$`), filepath.Base(first))

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
	data, err = os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	assert.Equal(t, 6, rec.bytes[RoleUpload])
}

func TestStore_SaveUpload_SizeLimit(t *testing.T) {
	s, _ := newTestStore(t, 8)

	_, err := s.SaveUpload("exact.png", make([]byte, 8))
	assert.NoError(t, err, "exactly the maximum is accepted")

	_, err = s.SaveUpload("big.png", make([]byte, 9))
	assert.ErrorIs(t, err, ErrSizeExceeded)

	entries, err := os.ReadDir(s.UploadDir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "rejected upload must not leave a file behind")
}

func TestStore_SaveResult(t *testing.T) {
	s, rec := newTestStore(t, 8)

	path, err := s.SaveResult("generated", "png", []byte("image"))
	require.NoError(t, err)

	assert.Equal(t, s.ResultDir(), filepath.Dir(path))
	assert.Regexp(t, regexp.MustCompile(`^generated_[0-9a-f]{32}\.png$`), filepath.Base(path))
	assert.Equal(t, "/results/"+filepath.Base(path), s.ResultURL(path))
	assert.Equal(t, 5, rec.bytes[RoleResult])
}

func TestStore_ResolveResult(t *testing.T) {
	s, _ := newTestStore(t, 8)
	path, err := s.SaveResult("generated", "png", []byte("image"))
	require.NoError(t, err)
	name := filepath.Base(path)

	for _, ref := range []string{"/results/" + name, "results/" + name, "http://host/x/" + name, name} {
		t.Run(ref, func(t *testing.T) {
			got, err := s.ResolveResult(ref)
			require.NoError(t, err)
			assert.Equal(t, path, got)
		})
	}

	for _, ref := range []string{"/results/doesnotexist.png", "/results/", "../../etc/passwd", ""} {
		t.Run("missing "+ref, func(t *testing.T) {
			_, err := s.ResolveResult(ref)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_Sweep(t *testing.T) {
	s, _ := newTestStore(t, 1024)

	oldUpload, err := s.SaveUpload("a.png", []byte("a"))
	require.NoError(t, err)
	oldResult, err := s.SaveResult("generated", "png", []byte("b"))
	require.NoError(t, err)
	fresh, err := s.SaveResult("generated", "png", []byte("c"))
	require.NoError(t, err)

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldUpload, past, past))
	require.NoError(t, os.Chtimes(oldResult, past, past))

	removed, err := s.Sweep(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	assert.NoFileExists(t, oldUpload)
	assert.NoFileExists(t, oldResult)
	assert.FileExists(t, fresh)
}
