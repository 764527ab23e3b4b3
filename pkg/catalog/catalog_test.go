package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func desc(sketch string) Descriptor {
	return Descriptor{
		Cabinet:       "lobby",
		FoundAllFiles: true,
		HasConfirmed:  true,
		MissingFiles:  []string{},
		FirstName:     "Ada",
		LastName:      "Lovelace",
		Sketch:        sketch,
	}
}

func TestGetMissingFileIsEmpty(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "_imports", "_links.json"))
	got, err := s.Get()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMergeAddsAndReplaces(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "_links.json"))

	require.NoError(t, s.Merge(map[string]Descriptor{"Ada_Lovelace_abc": desc("v1/index.html")}))
	require.NoError(t, s.Merge(map[string]Descriptor{"Ada_Lovelace_abc": desc("v2/index.html")}))

	got, err := s.Get()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "v2/index.html", got["Ada_Lovelace_abc"].Sketch)
}

func TestMergePreservesOtherEntriesAndUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "_links.json")
	existing := `{
  "hand_made": {"sketch": "hand/index.html", "is_buggy": true, "curator_note": "flickers"},
  "Ada_Lovelace_abc": {"sketch": "old.html", "curator_note": "replaced"}
}`
	require.NoError(t, os.WriteFile(path, []byte(existing), 0o644))

	s := NewStore(path)
	require.NoError(t, s.Merge(map[string]Descriptor{
		"Ada_Lovelace_abc": desc("new/index.html"),
		"Grace.H_xyz":      desc("grace/index.html"),
	}))

	raw, err := s.Raw()
	require.NoError(t, err)
	assert.Equal(t, "flickers", gjson.GetBytes(raw, "hand_made.curator_note").String())
	assert.True(t, gjson.GetBytes(raw, "hand_made.is_buggy").Bool())
	assert.False(t, gjson.GetBytes(raw, "Ada_Lovelace_abc.curator_note").Exists())
	assert.Equal(t, "grace/index.html", gjson.GetBytes(raw, `Grace\.H_xyz.sketch`).String())

	got, err := s.Get()
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestMergeEmptyBatchDoesNotCreateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "_links.json")
	require.NoError(t, NewStore(path).Merge(nil))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestMergeRefusesCorruptCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "_links.json")
	require.NoError(t, os.WriteFile(path, []byte(`[1,2`), 0o644))

	err := NewStore(path).Merge(map[string]Descriptor{"k": desc("x")})
	assert.True(t, errors.Is(err, ErrCorrupt), "err = %v", err)

	b, _ := os.ReadFile(path)
	assert.Equal(t, "[1,2", string(b))
}

func TestVisible(t *testing.T) {
	d := desc("x")
	d.Cabinet = "lobby, foyer"

	assert.True(t, Visible(d, "foyer"))
	assert.True(t, Visible(d, "lobby"))
	assert.False(t, Visible(d, "atrium"))
	assert.True(t, Visible(d, AllCabinets))

	buggy := d
	buggy.IsBuggy = true
	assert.False(t, Visible(buggy, AllCabinets))

	unconfirmed := d
	unconfirmed.HasConfirmed = false
	assert.False(t, Visible(unconfirmed, "lobby"))
}

func TestMarkBuggyKeepsRestOfEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "_links.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "Ada_Lovelace_abc": {"sketch": "_imports/Ada_Lovelace_abc/root/index.html", "is_buggy": false, "curator_note": "keep"},
  "Bob_def": {"sketch": "b.html", "is_buggy": false}
}`), 0o644))
	s := NewStore(path)

	require.NoError(t, s.MarkBuggy([]string{"Ada_Lovelace_abc", "Nobody_zzz"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, gjson.GetBytes(data, "Ada_Lovelace_abc.is_buggy").Bool())
	assert.Equal(t, "keep", gjson.GetBytes(data, "Ada_Lovelace_abc.curator_note").String())
	assert.Equal(t, "_imports/Ada_Lovelace_abc/root/index.html", gjson.GetBytes(data, "Ada_Lovelace_abc.sketch").String())
	assert.False(t, gjson.GetBytes(data, "Bob_def.is_buggy").Bool())
	assert.False(t, gjson.GetBytes(data, "Nobody_zzz").Exists())

	entries, err := s.Get()
	require.NoError(t, err)
	assert.False(t, Visible(entries["Ada_Lovelace_abc"], AllCabinets))
}

func TestMarkBuggyWithoutCatalogCreatesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "_links.json")
	require.NoError(t, NewStore(path).MarkBuggy([]string{"Ada_Lovelace_abc"}))
	_, err := os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
