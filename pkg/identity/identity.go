package identity

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ErrInvalidContent is returned when a guid cannot be derived because the
// message content is absent.
var ErrInvalidContent = errors.New("invalid message content")

// NewGUID derives the 64-bit message identity from the composition timestamp
// (milliseconds) and the payload bytes. The same inputs always yield the
// same guid, so the value can be recomputed remotely to verify identity.
func NewGUID(tsMs int64, content []byte) (uint64, error) {
	if len(content) == 0 {
		return 0, ErrInvalidContent
	}
	d := xxhash.New()
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(tsMs))
	_, _ = d.Write(ts[:])
	_, _ = d.Write(content)
	return d.Sum64(), nil
}

// Sequencer hands out strictly increasing per-chat local ids. Ids are
// assigned synchronously and never reused; a failed insert simply burns one.
type Sequencer struct {
	mu   sync.Mutex
	last map[string]int64
}

// NewSequencer returns an empty Sequencer. Seed each chat from the ledger's
// highest stored local id before first use.
func NewSequencer() *Sequencer {
	return &Sequencer{last: make(map[string]int64)}
}

// Seed records the highest known local id for a chat. Seeding backward is a
// no-op so replayed seeds cannot shrink the counter.
func (s *Sequencer) Seed(chatID string, last int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last > s.last[chatID] {
		s.last[chatID] = last
	}
}

// Next returns the next local id for the chat.
func (s *Sequencer) Next(chatID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[chatID]++
	return s.last[chatID]
}

// CheckSignature reports whether sig is a valid ed25519 signature by pub
// over data. Authors are identified by their ed25519 public key, so a remote
// message carrying a signature can be checked against its author field.
func CheckSignature(pub, sig, data []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), data, sig)
}
