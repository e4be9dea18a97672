package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbhuvana2005/patient-readmission-prediction/internal/artifacts"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/schema"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/storage/sqlite"
	"github.com/kbhuvana2005/patient-readmission-prediction/pkg/utils"
)

func newStore(t *testing.T) *sqlite.Client {
	t.Helper()
	store, err := sqlite.NewClient(filepath.Join(t.TempDir(), "artifacts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.InitSchema())
	return store
}

func sampleBundle(t *testing.T) *artifacts.Bundle {
	t.Helper()
	bundle, err := artifacts.DirSource{Dir: "../../../models"}.Load(context.Background())
	require.NoError(t, err)
	return bundle
}

func TestImportAndLoad(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	bundle := sampleBundle(t)

	record, err := store.ImportBundle(ctx, bundle)
	require.NoError(t, err)
	assert.Equal(t, int64(1), record.ID)
	assert.Equal(t, "2024.1-sample", record.ModelVersion)
	assert.Equal(t, len(bundle.Files), record.ArtifactCount)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, bundle.Files, loaded.Files)

	rt, err := artifacts.Open(ctx, store, schema.DefaultSchema())
	require.NoError(t, err)
	assert.Equal(t, "2024.1-sample", rt.Manifest.Version)
}

func TestImportReplacesPreviousBundle(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	first := &artifacts.Bundle{Origin: "old", Files: map[string][]byte{"stale.json": []byte("{}")}}
	_, err := store.ImportBundle(ctx, first)
	require.NoError(t, err)

	_, err = store.ImportBundle(ctx, sampleBundle(t))
	require.NoError(t, err)

	_, err = store.GetArtifact(ctx, "stale.json")
	assert.ErrorIs(t, err, sqlite.ErrArtifactNotFound)

	imports, err := store.ListImports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, imports, 2)
	assert.Equal(t, int64(2), imports[0].ID)
	assert.Equal(t, "old", imports[1].Origin)
}

func TestGetAndListArtifacts(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	bundle := sampleBundle(t)
	_, err := store.ImportBundle(ctx, bundle)
	require.NoError(t, err)

	a, err := store.GetArtifact(ctx, artifacts.ModelFile)
	require.NoError(t, err)
	assert.Equal(t, bundle.Files[artifacts.ModelFile], a.Content)
	assert.Equal(t, utils.HashBytes(a.Content), a.Checksum)
	assert.Equal(t, int64(len(a.Content)), a.Size)

	list, err := store.ListArtifacts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, artifacts.EncodersFile, list[0].Name)
	assert.Nil(t, list[0].Content)
}

func TestLoadEmptyStore(t *testing.T) {
	_, err := newStore(t).Load(context.Background())
	assert.Error(t, err)
}
