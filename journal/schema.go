package journal

import (
	"encoding/json"
	"time"

	"ptstream/codec"
	"ptstream/crypto"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var ErrNoSchema = errors.New("no schema recorded for topic")

// Schema is the handler configuration a run of batches was encoded with.
// It applies to every batch from FromSeq until the next schema.
type Schema struct {
	FromSeq     uint64              `json:"from_seq"`
	Pairs       []codec.HandlerPair `json:"pairs"`
	Fingerprint crypto.Hash         `json:"fingerprint"`
	RecordedAt  time.Time           `json:"recorded_at"`
}

var schemasPrefix = Prefixer("schemas")

// SetSchema records the registry's configuration as the schema of every
// batch appended to topic from now on. Recording the schema already in
// effect is a no-op.
func SetSchema(db *leveldb.DB, topic string, reg *codec.Registry) error {
	return WithTx(db, func(tx *leveldb.Transaction) error {
		current, err := latestSchema(tx, topic)
		if err != nil && !errors.Is(err, ErrNoSchema) {
			return err
		}
		if current != nil && current.Fingerprint == reg.Fingerprint() {
			return nil
		}

		last, err := lastSeqTx(tx, topic)
		if err != nil {
			return err
		}
		schema := &Schema{
			FromSeq:     last + 1,
			Pairs:       reg.Pairs(),
			Fingerprint: reg.Fingerprint(),
			RecordedAt:  time.Now(),
		}
		val, err := json.Marshal(schema)
		if err != nil {
			return errors.Wrap(err, "error encoding schema")
		}
		if err := tx.Put(schemasPrefix(topicKey(topic), seqKey(schema.FromSeq)), val, nil); err != nil {
			return errors.Wrap(err, "error writing schema")
		}
		logger.Info("recorded schema", "topic", topic, "from_seq", schema.FromSeq, "fingerprint", schema.Fingerprint.Short())
		return nil
	})
}

// SchemaAt returns the schema in effect for the batch seq of topic.
func SchemaAt(db *leveldb.DB, topic string, seq uint64) (*Schema, error) {
	rng := util.BytesPrefix(schemasPrefix(topicKey(topic), ""))
	iter := db.NewIterator(rng, nil)
	defer iter.Release()

	var found *Schema
	for iter.Next() {
		schema := new(Schema)
		if err := json.Unmarshal(iter.Value(), schema); err != nil {
			return nil, errors.Wrap(ErrCorruptBatch, err.Error())
		}
		if schema.FromSeq > seq {
			break
		}
		found = schema
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "error iterating schemas")
	}
	if found == nil {
		return nil, ErrNoSchema
	}
	return found, nil
}

// LatestSchema returns the most recently recorded schema of topic.
func LatestSchema(db *leveldb.DB, topic string) (*Schema, error) {
	snap, err := db.GetSnapshot()
	if err != nil {
		return nil, errors.Wrap(err, "error opening snapshot")
	}
	defer snap.Release()
	return latestSchema(snap, topic)
}

type iterable interface {
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

func latestSchema(r iterable, topic string) (*Schema, error) {
	iter := r.NewIterator(util.BytesPrefix(schemasPrefix(topicKey(topic), "")), nil)
	defer iter.Release()
	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return nil, errors.Wrap(err, "error reading schema")
		}
		return nil, ErrNoSchema
	}
	schema := new(Schema)
	if err := json.Unmarshal(iter.Value(), schema); err != nil {
		return nil, errors.Wrap(ErrCorruptBatch, err.Error())
	}
	return schema, nil
}
