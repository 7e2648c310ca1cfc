package boltdb

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

/*
Iterator keeps read-only bolt transaction open until Close is called.
Do not write into the same DB from the goroutine before closing the
iterator, bolt write transaction might deadlock waiting for the read
transaction to finish.
*/
type Iterator struct {
	tx      *bolt.Tx
	cursor  *bolt.Cursor
	key     []byte
	value   []byte
	decoder DecodeFn
	err     error
}

func newIterator(db *bolt.DB, bucket []byte, decoder DecodeFn) *Iterator {
	tx, err := db.Begin(false)
	if err != nil {
		return &Iterator{err: err, decoder: decoder}
	}
	return &Iterator{tx: tx, cursor: tx.Bucket(bucket).Cursor(), decoder: decoder}
}

func (it *Iterator) first() {
	if it.cursor != nil {
		it.key, it.value = it.cursor.First()
	}
}

func (it *Iterator) seek(key []byte) {
	if it.cursor != nil {
		it.key, it.value = it.cursor.Seek(key)
	}
}

func (it *Iterator) Next() {
	if it.Valid() {
		it.key, it.value = it.cursor.Next()
	}
}

func (it *Iterator) Valid() bool {
	return it.cursor != nil && it.key != nil
}

func (it *Iterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.key
}

func (it *Iterator) Value(v any) error {
	if !it.Valid() {
		if it.err != nil {
			return fmt.Errorf("iterator invalid: %w", it.err)
		}
		return fmt.Errorf("iterator invalid")
	}
	return it.decoder(it.value, v)
}

func (it *Iterator) Close() error {
	if it.tx == nil {
		return nil
	}
	tx := it.tx
	it.tx, it.cursor, it.key, it.value = nil, nil, nil, nil
	return tx.Rollback()
}
