package errors

import (
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestIsCode(t *testing.T) {
	err := UnsupportedFileType("application/x-tar")
	require.True(t, IsCode(err, ErrCodeUnsupportedFileType))
	require.False(t, IsCode(err, ErrCodeValidation))

	// Codes survive wrapping.
	wrapped := pkgerrors.Wrap(err, "ingest failed")
	require.True(t, IsCode(wrapped, ErrCodeUnsupportedFileType))

	require.False(t, IsCode(pkgerrors.New("plain"), ErrCodeValidation))
}

func TestCodeOf(t *testing.T) {
	require.Equal(t, ErrCodeNotFound, CodeOf(NotFound("document"), ErrCodeValidation))
	require.Equal(t, ErrCodeValidation, CodeOf(pkgerrors.New("plain"), ErrCodeValidation))
}

func TestDimensionMismatchMessage(t *testing.T) {
	err := DimensionMismatch(1536, 1024)
	require.Equal(t, ErrCodeDimensionMismatch, err.Code)
	require.Contains(t, err.Error(), "want 1536")
}

func TestUnwrap(t *testing.T) {
	cause := pkgerrors.New("socket closed")
	err := PersistenceFailed("write chunk", cause)
	require.ErrorIs(t, err, cause)
}
