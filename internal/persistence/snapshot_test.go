package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/ASHISH26940/pipekv/internal/store"
)

func sampleRecords() []store.Record {
	return []store.Record{
		{Tag: 3, Value: "three", Age: -2},
		{Tag: 1, Value: "one"},
		{Tag: 2, Value: "two words here"},
		{Tag: 4, Value: "a\xffb"},
		{Tag: 5, Value: ""},
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	for _, name := range []string{"snap.json", "snap.txt", "snap.bolt", "snap.db"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)

			require.NoError(t, Save(path, sampleRecords()))
			got, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, sampleRecords(), got)

			// no temporary files left behind
			entries, err := os.ReadDir(filepath.Dir(path))
			require.NoError(t, err)
			assert.Len(t, entries, 1)
		})
	}
}

func TestSaveLoad_Empty(t *testing.T) {
	for _, name := range []string{"empty.json", "empty.bolt"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, Save(path, nil))
			got, err := Load(path)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestSave_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	require.NoError(t, Save(path, sampleRecords()))
	require.NoError(t, Save(path, []store.Record{{Tag: 9, Value: "nine"}}))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []store.Record{{Tag: 9, Value: "nine"}}, got)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	// --- Test Case 1: missing file ---
	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, ErrSnapshot)

	// --- Test Case 2: corrupt JSON line after a valid one ---
	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{\"tag\":1,\"value\":\"a\"}\nnot json\n"), 0o644))
	got, err := Load(corrupt)
	assert.ErrorIs(t, err, ErrSnapshot)
	assert.Nil(t, got)

	// --- Test Case 3: entries without a tag ---
	for i, body := range []string{"{\"value\":\"x\"}\n", "null\n", "{\"tag\":1,\"value\":\"a\"}\n{\"tag\":null}\n"} {
		untagged := filepath.Join(dir, fmt.Sprintf("untagged-%d.json", i))
		require.NoError(t, os.WriteFile(untagged, []byte(body), 0o644))
		got, err := Load(untagged)
		assert.ErrorIs(t, err, ErrSnapshot, body)
		assert.Nil(t, got, body)
	}

	// --- Test Case 4: a bolt path that is not a bolt file ---
	fake := filepath.Join(dir, "fake.bolt")
	require.NoError(t, os.WriteFile(fake, []byte("definitely not a database"), 0o644))
	_, err = Load(fake)
	assert.ErrorIs(t, err, ErrSnapshot)
}

func TestResolve(t *testing.T) {
	p, err := Resolve("", "/abs/path.json")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path.json", p)

	p, err = Resolve("/data", "sub/snap.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data", "sub", "snap.json"), p)

	for _, bad := range []string{"", "../escape.json", "/etc/passwd"} {
		_, err := Resolve("/data", bad)
		assert.ErrorIs(t, err, ErrBadFileName, bad)
	}
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatBolt, FormatFor("a.BOLT"))
	assert.Equal(t, FormatBolt, FormatFor("dir/a.db"))
	assert.Equal(t, FormatJSON, FormatFor("a.json"))
	assert.Equal(t, FormatJSON, FormatFor("noext"))
	assert.Equal(t, "bolt", FormatBolt.String())
}

func TestSave_InvalidUTF8Value(t *testing.T) {
	path := filepath.Join(t.TempDir(), "binary.json")
	rec := store.Record{Tag: 1, Value: "\x00\xfe\xff"}
	require.NoError(t, Save(path, []store.Record{rec}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var e map[string]any
	require.NoError(t, json.Unmarshal(data, &e))
	assert.Equal(t, "AP7/", e["raw"])

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []store.Record{rec}, got)
}

func TestLoad_BoltMissingTag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "untagged.bolt")
	db, err := bolt.Open(path, 0o600, nil)
	require.NoError(t, err)
	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(recordsBucket)
		if err != nil {
			return err
		}
		return b.Put([]byte{0, 0, 0, 0, 0, 0, 0, 0}, []byte(`{"value":"x"}`))
	}))
	require.NoError(t, db.Close())

	got, err := Load(path)
	assert.ErrorIs(t, err, ErrSnapshot)
	assert.Nil(t, got)
}
