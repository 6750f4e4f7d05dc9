package localstore

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/monofs/monofs/monoerr"
)

// WriteBatch buffers puts across one or more families for a single
// atomic flush. Per spec.md §4.2, multiple batches may be under
// construction concurrently; values are not visible to readers until
// Flush commits them, and batches from different writers may
// interleave freely (bbolt serializes their commits internally).
type WriteBatch struct {
	db  *bolt.DB
	ops []pendingOp
}

type pendingOp struct {
	family Family
	key    []byte
	value  []byte
}

// BeginWrite starts a new batch. estimatedBytes is an optional sizing
// hint used to preallocate the op buffer; 0 means no hint.
func (s *Store) BeginWrite(estimatedBytes int) (*WriteBatch, error) {
	var capHint int
	if estimatedBytes > 0 {
		capHint = estimatedBytes / 64
	}
	return &WriteBatch{db: s.db, ops: make([]pendingOp, 0, capHint)}, nil
}

// Put buffers a write; it has no effect until Flush is called.
func (b *WriteBatch) Put(family Family, key, value []byte) {
	b.ops = append(b.ops, pendingOp{
		family: family,
		key:    append([]byte(nil), key...),
		value:  append([]byte(nil), value...),
	})
}

// Flush commits every buffered write in a single bbolt transaction.
// An empty batch is a no-op.
func (b *WriteBatch) Flush() error {
	if len(b.ops) == 0 {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		for _, op := range b.ops {
			bucket := tx.Bucket([]byte(op.family))
			if bucket == nil {
				return fmt.Errorf("localstore: unknown family %s", op.family)
			}
			if err := bucket.Put(op.key, op.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return monoerr.Transient("localstore.WriteBatch.Flush", err)
	}
	b.ops = b.ops[:0]
	return nil
}
