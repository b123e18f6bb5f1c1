package journal

import (
	"ptstream/codec"
	"ptstream/crypto"
	"ptstream/token"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
)

// ReplayFunc receives each replayed batch with its decoded tokens. err is
// the decode error of a batch whose tail could not be framed; tokens then
// holds the prefix decoded before it. Returning an error stops the replay.
type ReplayFunc func(b *Batch, tokens []token.Token, err error) error

// Replay decodes the batches of topic from fromSeq onward, each with the
// handler configuration recorded for it. Batches journaled before any
// schema was recorded are decoded with fallback, which may be nil.
func Replay(db *leveldb.DB, topic string, fromSeq uint64, catalog *codec.Catalog, fallback *codec.Codec, cb ReplayFunc) error {
	stream, err := Stream(db, topic, fromSeq)
	if err != nil {
		return err
	}
	defer stream.Close()

	codecs := make(map[crypto.Hash]*codec.Codec)
	for {
		b, err := stream.Next()
		if err != nil {
			return errors.Wrap(err, "error reading journal")
		}
		if b == nil {
			return nil
		}

		c, err := codecAt(db, topic, b.Seq, catalog, codecs, fallback)
		if err != nil {
			return err
		}
		tokens, decErr := c.DecodeBatch(b.Payload)
		if err := cb(b, tokens, decErr); err != nil {
			return err
		}
	}
}

func codecAt(db *leveldb.DB, topic string, seq uint64, catalog *codec.Catalog, cache map[crypto.Hash]*codec.Codec, fallback *codec.Codec) (*codec.Codec, error) {
	schema, err := SchemaAt(db, topic, seq)
	if errors.Is(err, ErrNoSchema) {
		if fallback == nil {
			return nil, errors.Wrapf(err, "batch %d", seq)
		}
		return fallback, nil
	}
	if err != nil {
		return nil, err
	}
	if c, ok := cache[schema.Fingerprint]; ok {
		return c, nil
	}
	reg, err := codec.LoadRegistry(catalog, schema.Pairs)
	if err != nil {
		return nil, errors.Wrapf(err, "error loading schema of batch %d", seq)
	}
	c := codec.New(reg)
	cache[schema.Fingerprint] = c
	return c, nil
}
