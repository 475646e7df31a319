package blob

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "___etc_passwd"},
		{"a/b\\c:d", "a_b_c_d"},
		{"  ..  ", "unnamed"},
		{"", "unnamed"},
		{"notes\x00\x1f.txt", "notes.txt"},
	}
	for _, tt := range tests {
		got := SanitizeFilename(tt.in)
		require.Equal(t, tt.want, got, "input %q", tt.in)
		require.NotContains(t, got, "..")
		require.NotContains(t, got, "/")
	}
}

func TestBuildKey(t *testing.T) {
	key := BuildKey("alice", "application/pdf", "report.pdf")
	parts := strings.Split(key, "/")
	require.Len(t, parts, 3)
	require.Equal(t, "alice", parts[0])
	require.Equal(t, CategoryDocs, parts[1])
	require.True(t, strings.HasPrefix(parts[2], "report_"))
	require.True(t, strings.HasSuffix(parts[2], ".pdf"))

	// Same filename twice gets distinct keys.
	require.NotEqual(t, key, BuildKey("alice", "application/pdf", "report.pdf"))
}

func TestCategoryForMime(t *testing.T) {
	require.Equal(t, CategoryAudio, CategoryForMime("audio/mpeg"))
	require.Equal(t, CategoryVideo, CategoryForMime("video/mp4"))
	require.Equal(t, CategoryDocs, CategoryForMime("application/pdf"))
	require.Equal(t, CategoryDocs, CategoryForMime("text/plain"))
}

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	key := "alice/docs/report.pdf"
	require.NoError(t, s.Put(ctx, key, []byte("content"), "application/pdf"))

	data, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte("content"), data)

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	require.Error(t, err)

	// Deleting twice is fine; the compensation path may retry.
	require.NoError(t, s.Delete(ctx, key))
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	err = s.Put(ctx, "../outside.txt", []byte("x"), "text/plain")
	require.Error(t, err)
}
