package store

import (
	"errors"
	"testing"

	"docstudio/internal/document"
	"docstudio/internal/persistence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPath = "/data/shop/users.json"

func openTest(t *testing.T, fsys *persistence.MemFS) *Handle {
	t.Helper()
	require.NoError(t, fsys.MkdirAll("/data/shop"))
	h, err := Open(fsys, testPath, "shop", "users", Options{})
	require.NoError(t, err)
	return h
}

func TestOpenCreatesMissingFile(t *testing.T) {
	fsys := persistence.NewMemFS()
	h := openTest(t, fsys)

	data, err := fsys.ReadFile(testPath)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
	assert.Equal(t, 1, fsys.Writes(testPath))
	assert.Equal(t, 0, h.Len())
	assert.Equal(t, "shop", h.DatabaseID())
	assert.Equal(t, "users", h.Table())
}

func TestOpenNormalizesNullFile(t *testing.T) {
	fsys := persistence.NewMemFS()
	require.NoError(t, fsys.MkdirAll("/data/shop"))
	require.NoError(t, fsys.WriteFile(testPath, []byte("null")))

	h := openTest(t, fsys)
	assert.Equal(t, 0, h.Len())
	data, err := fsys.ReadFile(testPath)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestOpenLoadsExistingDocuments(t *testing.T) {
	fsys := persistence.NewMemFS()
	require.NoError(t, fsys.MkdirAll("/data/shop"))
	require.NoError(t, fsys.WriteFile(testPath, []byte(`[{"_id":"a","n":1},{"_id":"b","n":2}]`)))

	h := openTest(t, fsys)
	assert.Equal(t, 1, fsys.Writes(testPath), "loading a valid file does not rewrite it")
	doc, ok := h.Get("b")
	require.True(t, ok)
	assert.Equal(t, float64(2), doc["n"])
	_, ok = h.Get("zzz")
	assert.False(t, ok)
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	fsys := persistence.NewMemFS()
	require.NoError(t, fsys.MkdirAll("/data/shop"))
	require.NoError(t, fsys.WriteFile(testPath, []byte(`{"oops":true}`)))

	_, err := Open(fsys, testPath, "shop", "users", Options{})
	var serr *persistence.StorageError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "decode", serr.Op)
}

func TestReadReturnsCopies(t *testing.T) {
	fsys := persistence.NewMemFS()
	h := openTest(t, fsys)
	require.NoError(t, h.Mutate(func(rows *Rows) error {
		rows.Append(document.Document{"_id": "a", "tags": []any{"x"}})
		return nil
	}))

	docs := h.Read()
	docs[0]["_id"] = "changed"
	docs[0]["tags"].([]any)[0] = "changed"

	again := h.Read()
	assert.Equal(t, "a", again[0]["_id"])
	assert.Equal(t, []any{"x"}, again[0]["tags"])
}

func TestMutateFlushesOncePerCall(t *testing.T) {
	fsys := persistence.NewMemFS()
	h := openTest(t, fsys)
	before := fsys.Writes(testPath)

	require.NoError(t, h.Mutate(func(rows *Rows) error {
		for _, id := range []string{"a", "b", "c"} {
			rows.Append(document.Document{"_id": id})
		}
		return nil
	}))
	assert.Equal(t, before+1, fsys.Writes(testPath))
	assert.Equal(t, 3, h.Len())

	data, err := fsys.ReadFile(testPath)
	require.NoError(t, err)
	docs, _, err := persistence.DecodeDocuments(data)
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}

func TestMutateWithoutChangesSkipsFlush(t *testing.T) {
	fsys := persistence.NewMemFS()
	h := openTest(t, fsys)
	before := fsys.Writes(testPath)
	require.NoError(t, h.Mutate(func(rows *Rows) error { return nil }))
	assert.Equal(t, before, fsys.Writes(testPath))
}

func TestMutateErrorLeavesTableUntouched(t *testing.T) {
	fsys := persistence.NewMemFS()
	h := openTest(t, fsys)
	require.NoError(t, h.Mutate(func(rows *Rows) error {
		rows.Append(document.Document{"_id": "a"})
		return nil
	}))
	before := fsys.Writes(testPath)

	boom := errors.New("boom")
	err := h.Mutate(func(rows *Rows) error {
		rows.Append(document.Document{"_id": "b"})
		rows.RemoveWhere(func(doc document.Document) bool { return doc["_id"] == "a" })
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, before, fsys.Writes(testPath))
	assert.Equal(t, 1, h.Len())
	_, ok := h.Get("a")
	assert.True(t, ok)
	_, ok = h.Get("b")
	assert.False(t, ok)
}

func TestMutateFlushErrorIsReturned(t *testing.T) {
	fsys := persistence.NewMemFS()
	h := openTest(t, fsys)
	fsys.WriteErr = errors.New("disk full")

	err := h.Mutate(func(rows *Rows) error {
		rows.Append(document.Document{"_id": "a"})
		return nil
	})
	var serr *persistence.StorageError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, 1, h.Len(), "in-memory state is not rolled back")
}

func TestRowsKeepIndexInSync(t *testing.T) {
	fsys := persistence.NewMemFS()
	h := openTest(t, fsys)
	require.NoError(t, h.Mutate(func(rows *Rows) error {
		for _, id := range []string{"a", "b", "c", "d"} {
			rows.Append(document.Document{"_id": id})
		}
		return nil
	}))

	require.NoError(t, h.Mutate(func(rows *Rows) error {
		removed := rows.RemoveWhere(func(doc document.Document) bool { return doc["_id"] == "b" })
		assert.Equal(t, 1, removed)

		pos, ok := rows.IndexOf("c")
		require.True(t, ok)
		assert.Equal(t, 1, pos)
		rows.Set(pos, document.Document{"_id": "c", "touched": true})

		removed = rows.RemoveWhere(func(doc document.Document) bool { return doc["_id"] == "a" })
		assert.Equal(t, 1, removed)
		return nil
	}))

	docs := h.Read()
	require.Len(t, docs, 2)
	assert.Equal(t, "c", docs[0]["_id"])
	assert.Equal(t, "d", docs[1]["_id"])

	doc, ok := h.Get("c")
	require.True(t, ok)
	assert.Equal(t, true, doc["touched"])
	doc, ok = h.Get("d")
	require.True(t, ok)
	assert.Equal(t, "d", doc["_id"])
	_, ok = h.Get("a")
	assert.False(t, ok)
}

func TestClosedHandleRejectsMutations(t *testing.T) {
	fsys := persistence.NewMemFS()
	h := openTest(t, fsys)
	h.Close()
	err := h.Mutate(func(rows *Rows) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
	assert.NotNil(t, h.Read())
}
