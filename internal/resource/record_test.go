package resource

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTwiceAtV1 has two writers read version 1, then both write.
func writeTwiceAtV1(t *testing.T, r Record) (errs []error) {
	t.Helper()
	var reads sync.WaitGroup
	reads.Add(2)
	var writes sync.WaitGroup
	out := make([]error, 2)
	for i := 0; i < 2; i++ {
		writes.Add(1)
		go func() {
			defer writes.Done()
			snap, err := r.ReadAt(1)
			reads.Done()
			if !assert.NoError(t, err) {
				return
			}
			reads.Wait()
			_, out[i] = r.Write(snap.Version, snap.Value+int64(i+1))
		}()
	}
	writes.Wait()
	return out
}

func TestCheckedRecord_OneWinnerPerVersion(t *testing.T) {
	r := NewCheckedRecord(10)
	errs := writeTwiceAtV1(t, r)

	var ok, mismatch int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, ErrVersionMismatch):
			mismatch++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, mismatch)
	assert.Equal(t, uint64(2), r.Current().Version)
}

func TestLatestRecord_BothWritersSucceed(t *testing.T) {
	r := NewLatestRecord(10)
	for _, err := range writeTwiceAtV1(t, r) {
		assert.NoError(t, err)
	}
	assert.Equal(t, uint64(3), r.Current().Version, "second write silently built on the first")
}

func TestCheckedRecord_VersionBumpsByOne(t *testing.T) {
	r := NewCheckedRecord(0)
	for v := uint64(1); v <= 5; v++ {
		snap, err := r.Write(v, int64(v*10))
		require.NoError(t, err)
		assert.Equal(t, Snapshot{Version: v + 1, Value: int64(v * 10)}, snap)
	}

	_, err := r.ReadAt(2)
	assert.ErrorIs(t, err, ErrVersionMismatch)
	snap, err := r.ReadAt(6)
	require.NoError(t, err)
	assert.Equal(t, int64(50), snap.Value)
}
