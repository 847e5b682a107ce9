package references

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobarin/voicebox/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "reference_audio"))
	require.NoError(t, err)
	return store
}

func putFile(t *testing.T, store *Store, rel, content string) string {
	t.Helper()
	path := filepath.Join(store.Root(), filepath.FromSlash(rel))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewStoreCreatesCollections(t *testing.T) {
	store := newTestStore(t)
	for _, c := range []string{CollectionDefault, CollectionCustom} {
		info, err := os.Stat(filepath.Join(store.Root(), c))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestLocate(t *testing.T) {
	store := newTestStore(t)

	loc, err := store.Locate("default/basic_ref_en.wav")
	require.NoError(t, err)
	assert.Equal(t, "default/basic_ref_en.wav", loc.ID)
	assert.Equal(t, CollectionDefault, loc.Collection)
	assert.Equal(t, "basic_ref_en.wav", loc.Filename)
	assert.Equal(t, filepath.Join(store.Root(), "default", "basic_ref_en.wav"), loc.Path)
	assert.Equal(t, filepath.Join(store.Root(), "default", "basic_ref_en.txt"), loc.SidecarPath())
}

func TestLocateRejectsTraversal(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{
		"../../etc/passwd",
		"default/../../etc/passwd",
		"custom/../../../secret.wav",
		"/etc/passwd",
		"..",
	} {
		_, err := store.Locate(id)
		require.Error(t, err, id)
		assert.Equal(t, models.KindAccessDenied, models.KindOf(err), id)
	}
}

func TestLocateRejectsSymlinkEscape(t *testing.T) {
	store := newTestStore(t)
	outside := filepath.Join(t.TempDir(), "secret.wav")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(store.Root(), "custom", "link.wav")))

	_, err := store.Locate("custom/link.wav")
	assert.Equal(t, models.KindAccessDenied, models.KindOf(err))
}

func TestLocateRejectsMalformedIDs(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"", "basic_ref_en.wav", "other/basic_ref_en.wav", "default/nested/a.wav"} {
		_, err := store.Locate(id)
		require.Error(t, err, id)
		assert.Equal(t, models.KindValidation, models.KindOf(err), id)
	}
}

func TestRequire(t *testing.T) {
	store := newTestStore(t)
	loc, err := store.Locate("default/missing.wav")
	require.NoError(t, err)

	err = store.Require(loc)
	assert.Equal(t, models.KindValidation, models.KindOf(err))
	assert.True(t, errors.Is(err, ErrReferenceNotFound))

	putFile(t, store, "default/missing.wav", "RIFF")
	assert.NoError(t, store.Require(loc))
}

func TestReadSidecar(t *testing.T) {
	store := newTestStore(t)
	loc, err := store.Locate("default/basic_ref_en.wav")
	require.NoError(t, err)

	_, err = store.ReadSidecar(loc)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	putFile(t, store, "default/basic_ref_en.txt", "  Some call me nature.\n")
	text, err := store.ReadSidecar(loc)
	require.NoError(t, err)
	assert.Equal(t, "Some call me nature.", text)

	putFile(t, store, "default/basic_ref_en.txt", "\xff\xfe\xfd")
	_, err = store.ReadSidecar(loc)
	assert.ErrorIs(t, err, ErrInvalidSidecar)
}

func TestSaveListDelete(t *testing.T) {
	store := newTestStore(t)
	putFile(t, store, "default/basic_ref_en.wav", "RIFF-default")
	putFile(t, store, "default/basic_ref_en.txt", "Some call me nature.")
	putFile(t, store, "default/notes.md", "ignored")

	loc, err := store.Save("me.wav", strings.NewReader("RIFF-custom"), "Hello from me.")
	require.NoError(t, err)
	assert.Equal(t, "custom/me.wav", loc.ID)

	text, err := store.ReadSidecar(loc)
	require.NoError(t, err)
	assert.Equal(t, "Hello from me.", text)

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "custom/me.wav", list[0].ID)
	assert.True(t, list[0].HasText)
	assert.Equal(t, int64(len("RIFF-custom")), list[0].ByteSize)
	assert.Equal(t, "default/basic_ref_en.wav", list[1].ID)

	// Re-uploading without text drops the stale transcript.
	_, err = store.Save("me.wav", strings.NewReader("RIFF-custom-2"), "")
	require.NoError(t, err)
	_, err = os.Stat(loc.SidecarPath())
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, store.Delete("custom/me.wav"))
	_, err = os.Stat(loc.Path)
	assert.True(t, os.IsNotExist(err))

	err = store.Delete("custom/me.wav")
	assert.ErrorIs(t, err, ErrReferenceNotFound)
}

func TestSaveValidation(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Save("notes.txt", strings.NewReader("x"), "")
	assert.Equal(t, models.KindValidation, models.KindOf(err))

	_, err = store.Save("../escape.wav", strings.NewReader("x"), "")
	assert.Equal(t, models.KindAccessDenied, models.KindOf(err))

	_, err = store.Save("", strings.NewReader("x"), "")
	assert.Equal(t, models.KindValidation, models.KindOf(err))
}

func TestDeleteDefaultIsDenied(t *testing.T) {
	store := newTestStore(t)
	path := putFile(t, store, "default/basic_ref_en.wav", "RIFF")

	err := store.Delete("default/basic_ref_en.wav")
	assert.Equal(t, models.KindAccessDenied, models.KindOf(err))
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestOpen(t *testing.T) {
	store := newTestStore(t)
	putFile(t, store, "default/basic_ref_en.wav", "RIFF")

	f, loc, err := store.Open("default/basic_ref_en.wav")
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "basic_ref_en.wav", loc.Filename)

	_, _, err = store.Open("../../etc/passwd")
	assert.Equal(t, models.KindAccessDenied, models.KindOf(err))
}
