package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cockroachdb/pebble"

	"peerchat/pkg/logger"
)

// PurgeTombstones drops deletion tombstones older than cutoff (unix ms). A
// tombstone only matters while a late copy of the deleted message could
// still arrive, so expired ones are safe to sweep. Returns the number of
// tombstones removed.
func PurgeTombstones(cutoff int64) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("ledger not opened; call ledger.Open first")
	}
	prefix := []byte("tomb:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	var victims [][]byte
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		ts, perr := strconv.ParseInt(string(iter.Value()), 10, 64)
		if perr != nil {
			logger.Warn("tombstone_invalid_value", "key", string(iter.Key()))
			continue
		}
		if ts < cutoff {
			victims = append(victims, append([]byte(nil), iter.Key()...))
		}
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	if len(victims) == 0 {
		return 0, nil
	}
	b := db.NewBatch()
	defer b.Close()
	for _, k := range victims {
		_ = b.Delete(k, nil)
	}
	if err := db.Apply(b, pebble.Sync); err != nil {
		return 0, err
	}
	tombsPurged.Add(float64(len(victims)))
	logger.Info("tombstones_purged", "count", len(victims), "cutoff", cutoff)
	return len(victims), nil
}

// PurgeRetractedReactions drops reaction index entries whose effective value
// is a retraction older than cutoff. A live reaction is never purged; a
// retraction only has to outlive the window in which an older reaction event
// for the same author could still arrive. Returns the number removed.
func PurgeRetractedReactions(cutoff int64) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("ledger not opened; call ledger.Open first")
	}
	prefix := []byte("react:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	var victims [][]byte
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var e ReactionEntry
		if perr := json.Unmarshal(iter.Value(), &e); perr != nil {
			logger.Warn("reaction_index_invalid_value", "key", string(iter.Key()))
			continue
		}
		if e.Emoji == "" && e.TS < cutoff {
			victims = append(victims, append([]byte(nil), iter.Key()...))
		}
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	if len(victims) == 0 {
		return 0, nil
	}
	b := db.NewBatch()
	defer b.Close()
	for _, k := range victims {
		_ = b.Delete(k, nil)
	}
	if err := db.Apply(b, pebble.Sync); err != nil {
		return 0, err
	}
	logger.Info("retracted_reactions_purged", "count", len(victims), "cutoff", cutoff)
	return len(victims), nil
}
