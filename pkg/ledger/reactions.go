package ledger

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"peerchat/pkg/models"
)

// Every reaction event is persisted as a normal message row (audit trail,
// idempotent replay). The fold down to one effective reaction per author is
// maintained in a separate index updated on insert, latest-by-timestamp.

// ReactionEntry is the folded per-author reaction for a target message.
type ReactionEntry struct {
	Emoji string `json:"emoji"`
	TS    int64  `json:"ts"`
	GUID  uint64 `json:"guid"`
}

func reactKey(chatID string, target uint64, author []byte) []byte {
	return []byte(fmt.Sprintf("react:%s:%020d:%s", chatID, target, hex.EncodeToString(author)))
}

func reactPrefix(chatID string, target uint64) []byte {
	return []byte(fmt.Sprintf("react:%s:%020d:", chatID, target))
}

// stageReaction folds the reaction event into the per-author index inside
// the caller's batch. Called under the chat lock.
func stageReaction(b *pebble.Batch, msg models.Message) error {
	r, err := models.DecodeReaction(msg.Data)
	if err != nil {
		return fmt.Errorf("invalid reaction payload: %w", err)
	}
	key := reactKey(msg.Chat, msg.ReplyTo, msg.Author)
	if v, closer, gerr := db.Get(key); gerr == nil {
		var cur ReactionEntry
		derr := json.Unmarshal(v, &cur)
		closer.Close()
		// later timestamp wins; guid breaks ties deterministically
		if derr == nil && (cur.TS > msg.TS || (cur.TS == msg.TS && cur.GUID >= msg.GUID)) {
			return nil
		}
	} else if gerr != pebble.ErrNotFound {
		return gerr
	}
	nv, merr := json.Marshal(ReactionEntry{Emoji: r.Emoji, TS: msg.TS, GUID: msg.GUID})
	if merr != nil {
		return merr
	}
	_ = b.Set(key, nv, nil)
	return nil
}

// EffectiveReactions returns the latest reaction per author for the target
// message, keyed by the author's hex public key. Retracted reactions (empty
// emoji) are omitted.
func EffectiveReactions(chatID string, target uint64) (map[string]ReactionEntry, error) {
	if db == nil {
		return nil, fmt.Errorf("ledger not opened; call ledger.Open first")
	}
	prefix := reactPrefix(chatID, target)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	out := make(map[string]ReactionEntry)
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var e ReactionEntry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, fmt.Errorf("invalid reaction index JSON: %w", err)
		}
		if e.Emoji == "" {
			continue
		}
		author := string(iter.Key()[len(prefix):])
		out[author] = e
	}
	return out, iter.Error()
}
