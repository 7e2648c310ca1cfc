package memorydb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rainbow-dao/drn/keyvaluedb"
)

func TestMemoryDB_ReadWrite(t *testing.T) {
	db := New()
	require.True(t, db.Empty())
	require.NoError(t, db.Write([]byte("a"), uint64(1)))
	require.False(t, db.Empty())

	var v uint64
	found, err := db.Read([]byte("a"), &v)
	require.NoError(t, err)
	require.True(t, found)
	require.EqualValues(t, 1, v)

	found, err = db.Read([]byte("b"), &v)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, db.Delete([]byte("a")))
	require.True(t, db.Empty())
}

func TestMemoryDB_MockWriteError(t *testing.T) {
	db := New()
	db.MockWriteError(errors.New("disk full"))
	require.EqualError(t, db.Write([]byte("a"), "a"), "disk full")

	tx, err := db.StartTx()
	require.NoError(t, err)
	require.NoError(t, tx.Write([]byte("a"), "a"))
	require.EqualError(t, tx.Commit(), "disk full")

	db.MockWriteError(nil)
	require.NoError(t, db.Write([]byte("a"), "a"))
}

func TestMemoryDB_Iterator(t *testing.T) {
	db := New()
	for _, k := range []string{"r/3", "r/1", "x/1", "r/2", "a/1"} {
		require.NoError(t, db.Write([]byte(k), k))
	}

	var keys []string
	require.NoError(t, keyvaluedb.ForEach(db, []byte("r/"), func(key []byte, it keyvaluedb.Iterator) error {
		var v string
		require.NoError(t, it.Value(&v))
		require.Equal(t, string(key), v)
		keys = append(keys, v)
		return nil
	}))
	require.Equal(t, []string{"r/1", "r/2", "r/3"}, keys)

	it := db.First()
	defer it.Close()
	require.Equal(t, []byte("a/1"), it.Key())

	it = db.Find([]byte("zzz"))
	require.False(t, it.Valid())
	require.Nil(t, it.Key())
	require.EqualError(t, it.Value(new(string)), "iterator invalid")
}

func TestMemoryDB_Tx(t *testing.T) {
	db := New()
	require.NoError(t, db.Write([]byte("keep"), "1"))
	require.NoError(t, db.Write([]byte("gone"), "2"))

	tx, err := db.StartTx()
	require.NoError(t, err)
	require.NoError(t, tx.Write([]byte("new"), "3"))
	require.NoError(t, tx.Delete([]byte("gone")))
	// changes are not visible before commit
	found, err := db.Read([]byte("new"), new(string))
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, tx.Commit())

	found, err = db.Read([]byte("new"), new(string))
	require.NoError(t, err)
	require.True(t, found)
	found, err = db.Read([]byte("gone"), new(string))
	require.NoError(t, err)
	require.False(t, found)

	require.EqualError(t, tx.Write([]byte("late"), "4"), "memdb tx write failed, tx closed")
	require.NoError(t, tx.Rollback())
}
