package journal

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var ErrCorruptBatch = errors.New("corrupt journal entry")

// Batch is one recorded transport message.
type Batch struct {
	Topic      string
	Seq        uint64
	ReceivedAt time.Time
	Payload    []byte
}

// topics are hex encoded in keys so a topic containing the separator cannot
// collide with another topic's prefix.
var (
	topicsPrefix  = Prefixer("topics")
	batchesPrefix = Prefixer("batches")
)

func topicKey(topic string) string {
	return hex.EncodeToString([]byte(topic))
}

func seqKey(seq uint64) string {
	return fmt.Sprintf("%016x", seq)
}

func Append(db *leveldb.DB, topic string, receivedAt time.Time, payload []byte) (uint64, error) {
	var seq uint64
	err := WithTx(db, func(tx *leveldb.Transaction) error {
		var err error
		seq, err = AppendTx(tx, topic, receivedAt, payload)
		return err
	})
	return seq, err
}

// AppendTx stores payload as the next batch of topic and returns its
// sequence number.
func AppendTx(tx *leveldb.Transaction, topic string, receivedAt time.Time, payload []byte) (uint64, error) {
	last, err := lastSeqTx(tx, topic)
	if err != nil {
		return 0, err
	}
	seq := last + 1

	val := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(val, uint64(receivedAt.UnixNano()))
	copy(val[8:], payload)
	if err := tx.Put(batchesPrefix(topicKey(topic), seqKey(seq)), val, nil); err != nil {
		return 0, errors.Wrap(err, "error writing batch")
	}

	seqB := make([]byte, 8)
	binary.BigEndian.PutUint64(seqB, seq)
	if err := tx.Put(topicsPrefix(topicKey(topic)), seqB, nil); err != nil {
		return 0, errors.Wrap(err, "error writing topic sequence")
	}
	return seq, nil
}

func LastSeq(db *leveldb.DB, topic string) (uint64, error) {
	b, err := db.Get(topicsPrefix(topicKey(topic)), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "error reading topic sequence")
	}
	return decodeSeq(b)
}

func lastSeqTx(tx *leveldb.Transaction, topic string) (uint64, error) {
	b, err := tx.Get(topicsPrefix(topicKey(topic)), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "error reading topic sequence")
	}
	return decodeSeq(b)
}

func decodeSeq(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, errors.Wrap(ErrCorruptBatch, "invalid sequence length")
	}
	return binary.BigEndian.Uint64(b), nil
}

type BatchStream struct {
	topic string
	iter  iterator.Iterator
}

// Next returns the next batch, or nil once the stream is exhausted.
func (bs *BatchStream) Next() (*Batch, error) {
	if !bs.iter.Next() {
		return nil, bs.iter.Error()
	}

	key := bs.iter.Key()
	val := bs.iter.Value()
	if len(key) < 16 || len(val) < 8 {
		return nil, ErrCorruptBatch
	}
	seqB, err := hex.DecodeString(string(key[len(key)-16:]))
	if err != nil {
		return nil, errors.Wrap(ErrCorruptBatch, err.Error())
	}
	payload := make([]byte, len(val)-8)
	copy(payload, val[8:])
	return &Batch{
		Topic:      bs.topic,
		Seq:        binary.BigEndian.Uint64(seqB),
		ReceivedAt: time.Unix(0, int64(binary.BigEndian.Uint64(val))),
		Payload:    payload,
	}, nil
}

func (bs *BatchStream) Close() error {
	bs.iter.Release()
	return bs.iter.Error()
}

// Stream replays the batches of topic in sequence order, starting at
// fromSeq.
func Stream(db *leveldb.DB, topic string, fromSeq uint64) (*BatchStream, error) {
	prefix := batchesPrefix(topicKey(topic), "")
	rng := util.BytesPrefix(prefix)
	if fromSeq > 1 {
		rng.Start = batchesPrefix(topicKey(topic), seqKey(fromSeq))
	}
	return &BatchStream{
		topic: topic,
		iter:  db.NewIterator(rng, nil),
	}, nil
}

// TopicInfo summarizes one journaled topic.
type TopicInfo struct {
	Topic   string
	LastSeq uint64
}

func Topics(db *leveldb.DB) ([]TopicInfo, error) {
	iter := db.NewIterator(util.BytesPrefix(topicsPrefix("")), nil)
	defer iter.Release()

	prefixLen := len(topicsPrefix(""))
	var out []TopicInfo
	for iter.Next() {
		topicB, err := hex.DecodeString(string(iter.Key()[prefixLen:]))
		if err != nil {
			return nil, errors.Wrap(ErrCorruptBatch, err.Error())
		}
		seq, err := decodeSeq(iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, TopicInfo{
			Topic:   string(topicB),
			LastSeq: seq,
		})
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "error iterating topics")
	}
	return out, nil
}
