package journal

import (
	"testing"

	"ptstream/testutil/testfs"

	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
)

func setupLevelDB(t *testing.T) (*leveldb.DB, func()) {
	dir, done := testfs.NewTempDir(t)
	db, err := Open(dir)
	require.NoError(t, err)

	return db, func() {
		require.NoError(t, db.Close())
		done()
	}
}

func streamAll(t *testing.T, db *leveldb.DB, topic string, fromSeq uint64) []*Batch {
	stream, err := Stream(db, topic, fromSeq)
	require.NoError(t, err)
	defer stream.Close()
	var out []*Batch
	for {
		b, err := stream.Next()
		require.NoError(t, err)
		if b == nil {
			return out
		}
		out = append(out, b)
	}
}
