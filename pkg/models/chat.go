package models

import (
	"encoding/hex"
	"strconv"
	"strings"
)

// Chat ids live in two disjoint namespaces: direct chats are keyed by the
// peer's public key ("d:<hex>") and group chats by the mediator group id
// ("g:<id>"). The prefix keeps the spaces disjoint in ledger keys.
const (
	directPrefix = "d:"
	groupPrefix  = "g:"
)

// DirectChatID derives the chat id for a direct conversation with a peer.
func DirectChatID(peerKey []byte) string {
	return directPrefix + hex.EncodeToString(peerKey)
}

// GroupChatID derives the chat id for a mediator-hosted group.
func GroupChatID(groupID uint64) string {
	return groupPrefix + strconv.FormatUint(groupID, 10)
}

// IsGroupChat reports whether the chat id names a mediator group.
func IsGroupChat(chatID string) bool { return strings.HasPrefix(chatID, groupPrefix) }

// GroupID extracts the numeric group id, or 0 if chatID is not a group chat.
func GroupID(chatID string) uint64 {
	if !IsGroupChat(chatID) {
		return 0
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(chatID, groupPrefix), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
