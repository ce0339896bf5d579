package errs

import (
	"errors"
	"io"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfiguration(t *testing.T) {
	err := Configuration("build", "graph_degree", "must be positive, got %d", 0)
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, CodeConfigInvalid, CodeOf(err))
	assert.True(t, HasCode(err, CodeConfigInvalid))

	fields := FieldsOf(err)
	assert.Equal(t, "build", fields["op"])
	assert.Equal(t, "graph_degree", fields["param"])
	assert.Contains(t, err.Error(), "must be positive")
}

func TestIOKeepsCause(t *testing.T) {
	err := IO("load", "/missing.vfg", os.ErrNotExist)

	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, "/missing.vfg", FieldsOf(err)["path"])
	assert.NoError(t, IO("load", "x", nil))
}

func TestCorruptFormat(t *testing.T) {
	err := CorruptFormat("adjacency", 42, io.ErrUnexpectedEOF)

	assert.ErrorIs(t, err, ErrCorruptFormat)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	var cf *CorruptFormatError
	require.True(t, errors.As(err, &cf))
	assert.Equal(t, int64(42), cf.Offset)
	assert.Equal(t, "adjacency", cf.Section)
	assert.Equal(t, CodeFormatCorrupt, CodeOf(err))
}

func TestDimensionMismatch(t *testing.T) {
	err := DimensionMismatch("search", 4, 3)

	assert.ErrorIs(t, err, ErrDimensionMismatch)
	var dm *DimensionMismatchError
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, 4, dm.Expected)
	assert.Equal(t, 3, dm.Actual)
}

func TestResourceExhausted(t *testing.T) {
	cause := errors.New("memory limit exceeded")
	err := ResourceExhausted("build", "device memory", 1024, 512, cause)

	assert.ErrorIs(t, err, ErrResourceExhausted)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, int64(1024), FieldsOf(err)["requested"])
}

func TestWithKeepsCode(t *testing.T) {
	err := With(InvalidState("add", "already populated"), Field("job_id", "j-1"))

	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, CodeStateInvalid, CodeOf(err))
	assert.Equal(t, "j-1", FieldsOf(err)["job_id"])
	assert.NoError(t, With(nil))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"not found", NotFound("get", "job", "x"), http.StatusNotFound},
		{"configuration", Configuration("create", "dimensions", "bad"), http.StatusBadRequest},
		{"dimension", DimensionMismatch("search", 2, 3), http.StatusBadRequest},
		{"state", InvalidState("add", "twice"), http.StatusConflict},
		{"empty", EmptyIndex("search"), http.StatusConflict},
		{"resource", ResourceExhausted("build", "memory", 1, 0, nil), http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
	assert.Equal(t, Code(""), CodeOf(nil))
	assert.Nil(t, FieldsOf(errors.New("plain")))
}
