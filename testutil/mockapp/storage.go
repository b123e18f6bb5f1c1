package mockapp

import (
	"testing"
	"time"

	"ptstream/codec"
	"ptstream/journal"
	"ptstream/testutil/testfs"
	"ptstream/token"

	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
)

func CreateTestDB(t *testing.T) (*leveldb.DB, func()) {
	dbDir, done := testfs.NewTempDir(t)
	db, err := journal.Open(dbDir)
	require.NoError(t, err)
	return db, func() {
		require.NoError(t, db.Close())
		done()
	}
}

// FillJournal records one batch per element of batches under topic, encoded
// with c, and returns the assigned sequence numbers.
func FillJournal(t *testing.T, db *leveldb.DB, c *codec.Codec, topic string, batches ...[]token.Token) []uint64 {
	require.NoError(t, journal.SetSchema(db, topic, c.Registry()))
	var seqs []uint64
	for _, tokens := range batches {
		payload, err := c.EncodeBatch(tokens)
		require.NoError(t, err)
		seq, err := journal.Append(db, topic, time.Now(), payload)
		require.NoError(t, err)
		seqs = append(seqs, seq)
	}
	return seqs
}
