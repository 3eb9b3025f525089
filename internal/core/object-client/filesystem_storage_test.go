package objectclient_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markdave123-py/documind/internal/core"
	objectclient "github.com/markdave123-py/documind/internal/core/object-client"
)

func TestFilesystemClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs, err := objectclient.NewFilesystemClient(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	key, err := fs.UploadFile(ctx, "user-1/abc_report.pdf", strings.NewReader("%PDF-1.4"), 8, "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "user-1/abc_report.pdf", key)

	data, err := fs.GetFile(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	require.NoError(t, fs.DeleteFiles(ctx, key, "user-1/missing.pdf"))

	_, err = fs.GetFile(ctx, key)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestFilesystemClientRejectsTraversal(t *testing.T) {
	fs, err := objectclient.NewFilesystemClient(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	for _, key := range []string{"", "../escape", "/etc/passwd"} {
		_, err := fs.GetFile(context.Background(), key)
		assert.ErrorIs(t, err, objectclient.ErrInvalidKey, "key %q", key)
	}
}
