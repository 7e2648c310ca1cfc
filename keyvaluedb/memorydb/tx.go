package memorydb

import (
	"fmt"

	"github.com/rainbow-dao/drn/keyvaluedb"
)

// Tx buffers changes until Commit, nil value in the buffer marks deleted key.
type Tx struct {
	mem     *MemoryDB
	changes map[string][]byte
	closed  bool
}

func newMapTx(m *MemoryDB) (*Tx, error) {
	if m == nil {
		return nil, fmt.Errorf("memory db is nil")
	}
	return &Tx{mem: m, changes: make(map[string][]byte)}, nil
}

func (t *Tx) Write(key []byte, value any) error {
	if err := keyvaluedb.CheckKeyAndValue(key, value); err != nil {
		return err
	}
	if t.closed {
		return fmt.Errorf("memdb tx write failed, tx closed")
	}
	b, err := t.mem.encoder(value)
	if err != nil {
		return err
	}
	t.changes[string(key)] = b
	return nil
}

func (t *Tx) Delete(key []byte) error {
	if err := keyvaluedb.CheckKey(key); err != nil {
		return err
	}
	if t.closed {
		return fmt.Errorf("memdb tx delete failed, tx closed")
	}
	t.changes[string(key)] = nil
	return nil
}

func (t *Tx) Rollback() error {
	t.closed = true
	t.changes = nil
	return nil
}

func (t *Tx) Commit() error {
	if t.closed {
		return fmt.Errorf("memdb tx commit failed, tx closed")
	}
	t.mem.lock.Lock()
	defer t.mem.lock.Unlock()
	t.closed = true
	if t.mem.writeErr != nil {
		return t.mem.writeErr
	}
	for k, v := range t.changes {
		if v == nil {
			delete(t.mem.db, k)
		} else {
			t.mem.db[k] = v
		}
	}
	t.changes = nil
	return nil
}
