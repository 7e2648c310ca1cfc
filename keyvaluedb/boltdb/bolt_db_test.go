package boltdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rainbow-dao/drn/keyvaluedb"
)

type testRecord struct {
	_     struct{} `cbor:",toarray"`
	Name  string
	Value uint64
}

func initBoltDB(t *testing.T) *BoltDB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	return db
}

func TestBoltDB_ReadWriteDelete(t *testing.T) {
	db := initBoltDB(t)
	require.True(t, db.Empty())

	var r testRecord
	found, err := db.Read([]byte("foo"), &r)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, db.Write([]byte("foo"), &testRecord{Name: "foo", Value: 42}))
	require.False(t, db.Empty())
	found, err = db.Read([]byte("foo"), &r)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "foo", r.Name)
	require.EqualValues(t, 42, r.Value)

	require.NoError(t, db.Delete([]byte("foo")))
	found, err = db.Read([]byte("foo"), &r)
	require.NoError(t, err)
	require.False(t, found)
}

func TestBoltDB_InvalidInput(t *testing.T) {
	db := initBoltDB(t)
	require.EqualError(t, db.Write(nil, "a"), "invalid key")
	require.EqualError(t, db.Delete([]byte{}), "invalid key")
	var r *testRecord
	_, err := db.Read([]byte("foo"), r)
	require.EqualError(t, err, "value is nil")
}

func TestBoltDB_Reopen(t *testing.T) {
	file := filepath.Join(t.TempDir(), "test.db")
	db, err := New(file)
	require.NoError(t, err)
	require.NoError(t, db.Write([]byte("k"), "persisted"))
	require.NoError(t, db.Close())

	db, err = New(file)
	require.NoError(t, err)
	defer db.Close()
	var s string
	found, err := db.Read([]byte("k"), &s)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "persisted", s)
}

func TestBoltDB_ForEachPrefix(t *testing.T) {
	db := initBoltDB(t)
	require.NoError(t, db.Write(keyvaluedb.Key("a/", []byte{1}), "a1"))
	require.NoError(t, db.Write(keyvaluedb.Key("b/", []byte{1}), "b1"))
	require.NoError(t, db.Write(keyvaluedb.Key("b/", []byte{2}), "b2"))
	require.NoError(t, db.Write(keyvaluedb.Key("c/", []byte{1}), "c1"))

	var got []string
	err := keyvaluedb.ForEach(db, []byte("b/"), func(key []byte, it keyvaluedb.Iterator) error {
		var s string
		if err := it.Value(&s); err != nil {
			return err
		}
		got = append(got, s)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"b1", "b2"}, got)

	it := db.First()
	require.True(t, it.Valid())
	require.Equal(t, []byte("a/\x01"), it.Key())
	require.NoError(t, it.Close())
	require.NoError(t, it.Close())
	require.False(t, it.Valid())
}

func TestBoltTx_Nil(t *testing.T) {
	tx, err := (&BoltDB{}).StartTx()
	require.ErrorContains(t, err, "db is nil")
	require.Nil(t, tx)
}

func TestBoltTx_CommitAndRollback(t *testing.T) {
	db := initBoltDB(t)

	tx, err := db.StartTx()
	require.NoError(t, err)
	require.NoError(t, tx.Write([]byte("test1"), "1"))
	require.NoError(t, tx.Write([]byte("test2"), "2"))
	require.NoError(t, tx.Rollback())
	require.True(t, db.Empty())

	tx, err = db.StartTx()
	require.NoError(t, err)
	require.NoError(t, tx.Write([]byte("test1"), "1"))
	require.NoError(t, tx.Write([]byte("test2"), "2"))
	require.NoError(t, tx.Delete([]byte("test2")))
	require.NoError(t, tx.Commit())
	// deferred rollback after commit
	require.NoError(t, tx.Rollback())

	var res string
	found, err := db.Read([]byte("test1"), &res)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "1", res)
	found, err = db.Read([]byte("test2"), &res)
	require.NoError(t, err)
	require.False(t, found)

	tx, err = db.StartTx()
	require.NoError(t, err)
	require.Error(t, tx.Write(nil, "1"))
	require.NoError(t, tx.Rollback())
}
