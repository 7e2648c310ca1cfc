package dispatcher

import (
	"fmt"

	"github.com/rainbow-dao/drn/keyvaluedb"
	"github.com/rainbow-dao/drn/types"
)

const receiptPrefix = "receipt/"

type (
	// replayLedger records consumed receipts, records are written through
	// to the DB.
	replayLedger struct {
		receipts map[types.ReceiptID]*receipt
		db       keyvaluedb.KeyValueDB
	}

	receipt struct {
		_ struct{} `cbor:",toarray"`
		// Anchor is the block height the proof was verified against.
		Anchor uint64
		// ConsumedAt is the local height the receipt was consumed at.
		ConsumedAt uint64
	}
)

func loadReplayLedger(db keyvaluedb.KeyValueDB) (*replayLedger, error) {
	rl := &replayLedger{receipts: make(map[types.ReceiptID]*receipt), db: db}
	err := keyvaluedb.ForEach(db, []byte(receiptPrefix), func(key []byte, it keyvaluedb.Iterator) error {
		var id types.ReceiptID
		if n := copy(id[:], key[len(receiptPrefix):]); n != len(id) {
			return fmt.Errorf("invalid receipt key %x", key)
		}
		r := &receipt{}
		if err := it.Value(r); err != nil {
			return fmt.Errorf("decoding receipt %s: %w", id, err)
		}
		rl.receipts[id] = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading replay ledger: %w", err)
	}
	return rl, nil
}

func (rl *replayLedger) consumed(id types.ReceiptID) bool {
	_, ok := rl.receipts[id]
	return ok
}

func (rl *replayLedger) consume(id types.ReceiptID, anchor, now uint64) error {
	r := &receipt{Anchor: anchor, ConsumedAt: now}
	if err := rl.db.Write(receiptKey(id), r); err != nil {
		return fmt.Errorf("writing receipt: %w", err)
	}
	rl.receipts[id] = r
	return nil
}

func (rl *replayLedger) release(id types.ReceiptID) error {
	if err := rl.db.Delete(receiptKey(id)); err != nil {
		return fmt.Errorf("deleting receipt: %w", err)
	}
	delete(rl.receipts, id)
	return nil
}

// prune drops receipts consumed more than retention blocks before now and
// returns the number of receipts dropped.
func (rl *replayLedger) prune(now, retention uint64) (int, error) {
	if retention == 0 {
		return 0, nil
	}
	var expired []types.ReceiptID
	for id, r := range rl.receipts {
		if now > r.ConsumedAt && now-r.ConsumedAt > retention {
			expired = append(expired, id)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}
	tx, err := rl.db.StartTx()
	if err != nil {
		return 0, fmt.Errorf("starting db tx: %w", err)
	}
	for _, id := range expired {
		if err := tx.Delete(receiptKey(id)); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("deleting receipt: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing pruned receipts: %w", err)
	}
	for _, id := range expired {
		delete(rl.receipts, id)
	}
	return len(expired), nil
}

func (rl *replayLedger) size() int {
	return len(rl.receipts)
}

func receiptKey(id types.ReceiptID) []byte {
	return keyvaluedb.Key(receiptPrefix, id[:])
}
