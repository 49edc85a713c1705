package challenge

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

// AuditEntry is one recorded state transition in a recovery Session,
// plus the hash binding it to everything recorded before it. PartIndex
// is -1 for a transition that belongs to the session as a whole rather
// than one outstanding challenge.
type AuditEntry struct {
	TS        int64  `json:"ts"`
	CfgIndex  int    `json:"cfg_index"`
	PartIndex int    `json:"part_index"`
	State     State  `json:"state"`
	Hash      string `json:"hash"`
}

// AuditLog is a hash-chained, append-only trail of a recovery Session's
// state transitions, chained by hash so that removing or reordering an
// entry breaks Verify. It never carries key material — only config/part
// indices and state names.
type AuditLog struct {
	lastHash []byte
	entries  []AuditEntry
}

// NewAuditLog returns an empty AuditLog.
func NewAuditLog() *AuditLog { return &AuditLog{} }

func (l *AuditLog) append(cfgIndex, partIndex int, st State) AuditEntry {
	h := sha256.New()
	h.Write(l.lastHash)
	h.Write(entryDigestInput(cfgIndex, partIndex, st))
	sum := h.Sum(nil)
	l.lastHash = sum
	e := AuditEntry{
		TS:        time.Now().Unix(),
		CfgIndex:  cfgIndex,
		PartIndex: partIndex,
		State:     st,
		Hash:      hex.EncodeToString(sum),
	}
	l.entries = append(l.entries, e)
	return e
}

func entryDigestInput(cfgIndex, partIndex int, st State) []byte {
	return []byte("cfg=" + strconv.Itoa(cfgIndex) + " part=" + strconv.Itoa(partIndex) + " state=" + st.String())
}

// ErrChainBroken is returned by Verify when an entry's hash doesn't
// match what its predecessor's chain produces.
var ErrChainBroken = errors.New("challenge: audit chain broken")

// Verify recomputes the hash chain and reports whether it still matches
// every recorded AuditEntry.
func (l *AuditLog) Verify() error {
	var prev []byte
	for _, e := range l.entries {
		h := sha256.New()
		h.Write(prev)
		h.Write(entryDigestInput(e.CfgIndex, e.PartIndex, e.State))
		sum := h.Sum(nil)
		if hex.EncodeToString(sum) != e.Hash {
			return ErrChainBroken
		}
		prev = sum
	}
	return nil
}

// Entries returns a copy of the recorded entries, in append order.
func (l *AuditLog) Entries() []AuditEntry { return append([]AuditEntry(nil), l.entries...) }
