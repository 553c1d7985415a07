package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/mintline/internal/adapters/file"
	"github.com/aretw0/mintline/pkg/domain"
	"github.com/aretw0/mintline/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Contract(t *testing.T) {
	ports.RunStateStoreContract(t, file.New(t.TempDir()))
}

func TestStore_DefaultDir(t *testing.T) {
	assert.Equal(t, filepath.Join(".mintline", "workflows"), file.New("").Dir)
}

func TestStore_RejectsPathTraversal(t *testing.T) {
	s := file.New(t.TempDir())
	ctx := context.Background()

	for _, id := range []string{"", "../escape", "a/b", "..", ".hidden"} {
		err := s.Save(ctx, id, domain.NewWorkflowState(id))
		assert.Error(t, err, id)
		_, err = s.Load(ctx, id)
		assert.Error(t, err, id)
	}
}

func TestStore_ListSkipsTempAndForeignFiles(t *testing.T) {
	dir := t.TempDir()
	s := file.New(dir)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "wf-b", domain.NewWorkflowState("wf-b")))
	require.NoError(t, s.Save(ctx, "wf-a", domain.NewWorkflowState("wf-a")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-wf-c-123"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o755))

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"wf-a", "wf-b"}, ids)
}

func TestStore_ListMissingDir(t *testing.T) {
	s := file.New(filepath.Join(t.TempDir(), "missing"))
	ids, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wf-1.json"), []byte("{not json"), 0o644))

	_, err := file.New(dir).Load(context.Background(), "wf-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrWorkflowNotFound)
}
