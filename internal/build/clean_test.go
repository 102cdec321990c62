package build

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/testutils"
)

func TestCleanerRemovesPriorOutput(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, root string)
	}{
		{
			name:  "missing root",
			setup: func(t *testing.T, root string) {},
		},
		{
			name: "empty root",
			setup: func(t *testing.T, root string) {
				require.NoError(t, os.MkdirAll(root, 0755))
			},
		},
		{
			name: "stale output",
			setup: func(t *testing.T, root string) {
				testutils.WriteTree(t, root, map[string]string{
					"index.html":                 "<p>old</p>",
					"assets/styles/main.min.css": "a{}",
					"assets/img/deep/logo.png":   "png",
				})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := filepath.Join(t.TempDir(), "dist")
			tt.setup(t, root)

			cleaner := NewCleaner(root, logging.Nop())
			require.NoError(t, cleaner.Run(context.Background()))

			_, err := os.Stat(root)
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestCleanerRefusesWorkingDirectory(t *testing.T) {
	for _, root := range []string{".", "..", string(filepath.Separator)} {
		t.Run(root, func(t *testing.T) {
			err := NewCleaner(root, logging.Nop()).Run(context.Background())
			require.Error(t, err)
			assert.True(t, errs.IsFatal(err))
			assert.Equal(t, StageClean, errs.StageOf(err))
		})
	}
}

func TestStartsWithParent(t *testing.T) {
	assert.True(t, startsWithParent(".."))
	assert.True(t, startsWithParent(".."+string(filepath.Separator)+"x"))
	assert.False(t, startsWithParent("..x"))
	assert.False(t, startsWithParent("."))
	assert.False(t, startsWithParent("sub"))
}
