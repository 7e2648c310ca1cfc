package memorydb

import (
	"bytes"
	"fmt"
	"sort"
)

type Iterator struct {
	keys    [][]byte
	values  [][]byte
	pos     int
	decoder DecodeFn
}

// newIterator takes a snapshot of the map, changes made to the DB after
// that are not visible to the iterator.
func newIterator(m map[string][]byte, decoder DecodeFn) *Iterator {
	keys := make([][]byte, 0, len(m))
	for k := range m {
		keys = append(keys, []byte(k))
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = m[string(k)]
	}
	return &Iterator{keys: keys, values: values, pos: -1, decoder: decoder}
}

func (it *Iterator) first() {
	it.pos = 0
}

func (it *Iterator) seek(key []byte) {
	it.pos = sort.Search(len(it.keys), func(i int) bool { return bytes.Compare(it.keys[i], key) >= 0 })
}

func (it *Iterator) Next() {
	if it.Valid() {
		it.pos++
	}
}

func (it *Iterator) Valid() bool {
	return it.pos >= 0 && it.pos < len(it.keys)
}

func (it *Iterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.keys[it.pos]
}

func (it *Iterator) Value(value any) error {
	if !it.Valid() {
		return fmt.Errorf("iterator invalid")
	}
	return it.decoder(it.values[it.pos], value)
}

func (it *Iterator) Close() error {
	it.keys, it.values = nil, nil
	return nil
}
