package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"

	"peerchat/pkg/identity"
	"peerchat/pkg/logger"
	"peerchat/pkg/models"
)

var db *pebble.DB
var dbPath string

// seq assigns per-chat local ids; it is seeded lazily from the stored
// lastid key the first time a chat is written.
var seq = identity.NewSequencer()
var seeded sync.Map

// chatLocks serializes writes per chat so the guid check-then-insert is
// atomic. Writes to different chats proceed in parallel.
const lockShards = 64

var chatLocks [lockShards]sync.Mutex

func lockFor(chatID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(chatID))
	return &chatLocks[h.Sum32()%lockShards]
}

// Open opens (or creates) the Pebble database at the given path and keeps a
// global handle for simple usage in this package.
func Open(path string) error {
	return open(path, &pebble.Options{})
}

// OpenWithCache opens the database with a block cache of the given size.
func OpenWithCache(path string, cacheBytes int64) error {
	if cacheBytes <= 0 {
		return Open(path)
	}
	cache := pebble.NewCache(cacheBytes)
	defer cache.Unref()
	return open(path, &pebble.Options{Cache: cache})
}

func open(path string, opts *pebble.Options) error {
	var err error
	logger.Info("opening_ledger", "path", path)
	db, err = pebble.Open(path, opts)
	if err != nil {
		logger.Error("ledger_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	logger.Info("ledger_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	dbPath = ""
	seeded = sync.Map{}
	seq = identity.NewSequencer()
	logger.Info("ledger_closed")
	return nil
}

// Ready reports whether the ledger is opened and ready.
func Ready() bool { return db != nil }

// Key layout. Chat ids may themselves contain ':' so keys are only ever
// parsed by stripping a known prefix and suffix, never by splitting.
//
//	chat:<chatID>:msg:<localID padded>   message row JSON
//	guid:<chatID>:<guid padded>          guid -> localID dedup index
//	tomb:<chatID>:<guid padded>          deletion timestamp (LWW vs insert)
//	chat:<chatID>:lastid                 highest assigned local id
//	chat:<chatID>:readmark               first-unread marker
//	react:<chatID>:<guid padded>:<author hex>  latest effective reaction

func msgKey(chatID string, localID int64) []byte {
	return []byte(fmt.Sprintf("chat:%s:msg:%020d", chatID, localID))
}

func msgPrefix(chatID string) []byte {
	return []byte("chat:" + chatID + ":msg:")
}

func guidKey(chatID string, guid uint64) []byte {
	return []byte(fmt.Sprintf("guid:%s:%020d", chatID, guid))
}

func tombKey(chatID string, guid uint64) []byte {
	return []byte(fmt.Sprintf("tomb:%s:%020d", chatID, guid))
}

func lastIDKey(chatID string) []byte {
	return []byte("chat:" + chatID + ":lastid")
}

func readMarkKey(chatID string) []byte {
	return []byte("chat:" + chatID + ":readmark")
}

func getInt(key []byte) (int64, bool, error) {
	v, closer, err := db.Get(key)
	if err == pebble.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	defer closer.Close()
	n, perr := strconv.ParseInt(string(v), 10, 64)
	if perr != nil {
		return 0, false, perr
	}
	return n, true, nil
}

func seedChat(chatID string) error {
	if _, ok := seeded.Load(chatID); ok {
		return nil
	}
	last, _, err := getInt(lastIDKey(chatID))
	if err != nil {
		return err
	}
	seq.Seed(chatID, last)
	seeded.Store(chatID, struct{}{})
	return nil
}

// InsertIfAbsent inserts the message unless a row with the same guid already
// exists in the chat, or a tombstone at or after the message timestamp
// suppresses it. It assigns the local id and returns it; inserted is false
// for both the duplicate and the suppressed case, which are successful
// no-ops by definition.
func InsertIfAbsent(msg models.Message) (localID int64, inserted bool, err error) {
	if db == nil {
		return 0, false, fmt.Errorf("ledger not opened; call ledger.Open first")
	}
	mu := lockFor(msg.Chat)
	mu.Lock()
	defer mu.Unlock()

	// dedup by guid
	if existing, ok, gerr := getInt(guidKey(msg.Chat, msg.GUID)); gerr != nil {
		return 0, false, gerr
	} else if ok {
		dupSkips.Inc()
		logger.Debug("insert_duplicate_guid", "chat", msg.Chat, "guid", msg.GUID)
		return existing, false, nil
	}

	// a tombstone at or after the message timestamp wins over the insert
	if ts, ok, terr := getInt(tombKey(msg.Chat, msg.GUID)); terr != nil {
		return 0, false, terr
	} else if ok && ts >= msg.TS {
		tombSuppressed.Inc()
		logger.Debug("insert_suppressed_by_tombstone", "chat", msg.Chat, "guid", msg.GUID)
		return 0, false, nil
	}

	if err := seedChat(msg.Chat); err != nil {
		return 0, false, err
	}
	msg.LocalID = seq.Next(msg.Chat)

	data, merr := json.Marshal(msg)
	if merr != nil {
		return 0, false, fmt.Errorf("failed to marshal message: %w", merr)
	}

	b := db.NewBatch()
	defer b.Close()
	_ = b.Set(msgKey(msg.Chat, msg.LocalID), data, nil)
	_ = b.Set(guidKey(msg.Chat, msg.GUID), []byte(strconv.FormatInt(msg.LocalID, 10)), nil)
	_ = b.Set(lastIDKey(msg.Chat), []byte(strconv.FormatInt(msg.LocalID, 10)), nil)
	if msg.IsReaction() && msg.ReplyTo != 0 {
		if rerr := stageReaction(b, msg); rerr != nil {
			return 0, false, rerr
		}
	}
	if err := db.Apply(b, pebble.Sync); err != nil {
		logger.Error("insert_failed", "chat", msg.Chat, "guid", msg.GUID, "error", err)
		return 0, false, err
	}
	inserts.Inc()
	logger.Debug("message_inserted", "chat", msg.Chat, "guid", msg.GUID, "local_id", msg.LocalID)
	return msg.LocalID, true, nil
}

// FindByGUID returns the message with the given guid, or nil if absent.
func FindByGUID(chatID string, guid uint64) (*models.Message, error) {
	if db == nil {
		return nil, fmt.Errorf("ledger not opened; call ledger.Open first")
	}
	localID, ok, err := getInt(guidKey(chatID, guid))
	if err != nil || !ok {
		return nil, err
	}
	v, closer, gerr := db.Get(msgKey(chatID, localID))
	if gerr == pebble.ErrNotFound {
		return nil, nil
	}
	if gerr != nil {
		return nil, gerr
	}
	defer closer.Close()
	var m models.Message
	if err := json.Unmarshal(v, &m); err != nil {
		return nil, fmt.Errorf("invalid message JSON: %w", err)
	}
	return &m, nil
}

// FindByLocalID returns the message with the given local id, or nil if
// absent.
func FindByLocalID(chatID string, localID int64) (*models.Message, error) {
	if db == nil {
		return nil, fmt.Errorf("ledger not opened; call ledger.Open first")
	}
	v, closer, err := db.Get(msgKey(chatID, localID))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	var m models.Message
	if err := json.Unmarshal(v, &m); err != nil {
		return nil, fmt.Errorf("invalid message JSON: %w", err)
	}
	return &m, nil
}

// mutate applies fn to the stored row under the chat lock and persists the
// result when fn reports a change. fn receives nil-safe, decoded state.
func mutate(chatID string, guid uint64, fn func(*models.Message) bool) (bool, error) {
	if db == nil {
		return false, fmt.Errorf("ledger not opened; call ledger.Open first")
	}
	mu := lockFor(chatID)
	mu.Lock()
	defer mu.Unlock()

	m, err := FindByGUID(chatID, guid)
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, nil
	}
	if !fn(m) {
		return false, nil
	}
	data, merr := json.Marshal(m)
	if merr != nil {
		return false, fmt.Errorf("failed to marshal message: %w", merr)
	}
	if err := db.Set(msgKey(chatID, m.LocalID), data, pebble.Sync); err != nil {
		return false, err
	}
	return true, nil
}

// SetDeliveryState moves the row's delivery state forward. A state that is
// not stronger than the stored one leaves the row untouched; re-applying the
// same acknowledgement is a no-op.
func SetDeliveryState(chatID string, guid uint64, st models.DeliveryState) (bool, error) {
	changed, err := mutate(chatID, guid, func(m *models.Message) bool {
		if !st.Stronger(m.State) {
			return false
		}
		m.State = st
		return true
	})
	if changed {
		stateTransitions.WithLabelValues(st.String()).Inc()
	}
	return changed, err
}

// MarkPending re-enters Pending for an explicit resend. This is the only
// sanctioned backward transition.
func MarkPending(chatID string, guid uint64) (bool, error) {
	return mutate(chatID, guid, func(m *models.Message) bool {
		if m.State == models.StatePending {
			return false
		}
		m.State = models.StatePending
		return true
	})
}

// SetServerID attaches the mediator-assigned reference to the row. The
// server id is advisory; identity stays with the guid.
func SetServerID(chatID string, guid uint64, serverID int64) (bool, error) {
	return mutate(chatID, guid, func(m *models.Message) bool {
		if m.ServerID == serverID {
			return false
		}
		m.ServerID = serverID
		return true
	})
}

// DeleteByGUID removes the row if present and always records a tombstone at
// deletedTS, so a copy of the message arriving later does not resurrect it.
// Deleting an absent guid is a successful no-op.
func DeleteByGUID(chatID string, guid uint64, deletedTS int64) (removed bool, err error) {
	if db == nil {
		return false, fmt.Errorf("ledger not opened; call ledger.Open first")
	}
	mu := lockFor(chatID)
	mu.Lock()
	defer mu.Unlock()

	b := db.NewBatch()
	defer b.Close()

	localID, ok, gerr := getInt(guidKey(chatID, guid))
	if gerr != nil {
		return false, gerr
	}
	if ok {
		_ = b.Delete(msgKey(chatID, localID), nil)
		_ = b.Delete(guidKey(chatID, guid), nil)
		removed = true
	}
	// keep the later of racing tombstones
	if prev, tok, terr := getInt(tombKey(chatID, guid)); terr != nil {
		return false, terr
	} else if !tok || deletedTS > prev {
		_ = b.Set(tombKey(chatID, guid), []byte(strconv.FormatInt(deletedTS, 10)), nil)
	}
	if err := db.Apply(b, pebble.Sync); err != nil {
		logger.Error("delete_failed", "chat", chatID, "guid", guid, "error", err)
		return false, err
	}
	if removed {
		deletes.Inc()
	}
	logger.Debug("message_deleted", "chat", chatID, "guid", guid, "removed", removed)
	return removed, nil
}

// ListSince returns up to limit messages with local id greater than marker,
// in local id order. A zero limit returns everything after the marker. The
// call is restartable: pass the last returned local id as the next marker.
func ListSince(chatID string, marker int64, limit int) ([]models.Message, error) {
	if db == nil {
		return nil, fmt.Errorf("ledger not opened; call ledger.Open first")
	}
	prefix := msgPrefix(chatID)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	start := msgKey(chatID, marker+1)
	for iter.SeekGE(start); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			logger.Error("list_invalid_message_json", "chat", chatID, "error", err)
			return nil, fmt.Errorf("invalid message JSON: %w", err)
		}
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}

// LastLocalID returns the highest assigned local id for the chat.
func LastLocalID(chatID string) (int64, error) {
	if db == nil {
		return 0, fmt.Errorf("ledger not opened; call ledger.Open first")
	}
	n, _, err := getInt(lastIDKey(chatID))
	return n, err
}

// ReadMarker returns the first-unread marker for the chat.
func ReadMarker(chatID string) (int64, error) {
	if db == nil {
		return 0, fmt.Errorf("ledger not opened; call ledger.Open first")
	}
	n, _, err := getInt(readMarkKey(chatID))
	return n, err
}

// SetReadMarker advances the first-unread marker. The marker only moves
// forward; a stale mark-read is ignored.
func SetReadMarker(chatID string, localID int64) error {
	if db == nil {
		return fmt.Errorf("ledger not opened; call ledger.Open first")
	}
	mu := lockFor(chatID)
	mu.Lock()
	defer mu.Unlock()
	prev, _, err := getInt(readMarkKey(chatID))
	if err != nil {
		return err
	}
	if localID <= prev {
		return nil
	}
	return db.Set(readMarkKey(chatID), []byte(strconv.FormatInt(localID, 10)), pebble.Sync)
}

// ListChats returns every chat id with at least one assigned local id.
func ListChats() ([]string, error) {
	if db == nil {
		return nil, fmt.Errorf("ledger not opened; call ledger.Open first")
	}
	prefix := []byte("chat:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		k := string(iter.Key())
		if !strings.HasPrefix(k, "chat:") {
			break
		}
		if strings.HasSuffix(k, ":lastid") {
			out = append(out, strings.TrimSuffix(strings.TrimPrefix(k, "chat:"), ":lastid"))
		}
	}
	return out, iter.Error()
}
