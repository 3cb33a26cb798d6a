package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
)

// Snapshot renders v as RFC 8785 canonical JSON so equal states always
// produce equal bytes. A nil value yields a nil snapshot.
func Snapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		if len(raw) == 0 {
			return nil, nil
		}
		return jcs.Transform(raw)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	if string(data) == "null" {
		return nil, nil
	}
	out, err := jcs.Transform(data)
	if err != nil {
		return nil, fmt.Errorf("canonicalize snapshot: %w", err)
	}
	return out, nil
}

type hashInput struct {
	EntityType EntityType        `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	EntitySeq  int64             `json:"entity_seq"`
	ActorID    string            `json:"actor_id"`
	ActorType  string            `json:"actor_type"`
	Action     string            `json:"action"`
	Previous   json.RawMessage   `json:"previous,omitempty"`
	Next       json.RawMessage   `json:"next,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Timestamp  string            `json:"timestamp"`
	PrevHash   string            `json:"prev_hash,omitempty"`
}

// ComputeHash returns the hex SHA-256 of the entry's canonical content.
// Seq and Hash are excluded; Seq is assigned by the store at commit.
func ComputeHash(e *Entry) (string, error) {
	data, err := json.Marshal(hashInput{
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		EntitySeq:  e.EntitySeq,
		ActorID:    e.ActorID,
		ActorType:  string(e.ActorType),
		Action:     e.Action,
		Previous:   e.Previous,
		Next:       e.Next,
		Reason:     e.Reason,
		Metadata:   e.Metadata,
		Timestamp:  e.Timestamp.UTC().Format(time.RFC3339Nano),
		PrevHash:   e.PrevHash,
	})
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(data)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Chain links e after head (nil for the first entry of an entity) and seals it.
func Chain(e *Entry, head *Entry) error {
	e.EntitySeq = 1
	e.PrevHash = ""
	if head != nil {
		e.EntitySeq = head.EntitySeq + 1
		e.PrevHash = head.Hash
	}
	h, err := ComputeHash(e)
	if err != nil {
		return fmt.Errorf("hash audit entry: %w", err)
	}
	e.Hash = h
	return nil
}

// ChainError describes the first break found while verifying a history.
type ChainError struct {
	EntityID  string
	EntitySeq int64
	Reason    string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("audit chain broken for %s at seq %d: %s", e.EntityID, e.EntitySeq, e.Reason)
}

// VerifyChain checks that entries (one entity, ordered by EntitySeq) are
// contiguous, correctly hashed, correctly linked, and that each Previous
// snapshot equals the prior Next.
func VerifyChain(entries []Entry) error {
	var prev *Entry
	for i := range entries {
		e := &entries[i]
		want := int64(1)
		if prev != nil {
			want = prev.EntitySeq + 1
		}
		if e.EntitySeq != want {
			return &ChainError{EntityID: e.EntityID, EntitySeq: e.EntitySeq, Reason: fmt.Sprintf("expected seq %d", want)}
		}
		h, err := ComputeHash(e)
		if err != nil {
			return err
		}
		if h != e.Hash {
			return &ChainError{EntityID: e.EntityID, EntitySeq: e.EntitySeq, Reason: "hash mismatch"}
		}
		if prev == nil {
			if e.PrevHash != "" || len(e.Previous) != 0 {
				return &ChainError{EntityID: e.EntityID, EntitySeq: e.EntitySeq, Reason: "first entry has a predecessor"}
			}
		} else {
			if e.PrevHash != prev.Hash {
				return &ChainError{EntityID: e.EntityID, EntitySeq: e.EntitySeq, Reason: "prev hash mismatch"}
			}
			if !bytes.Equal(e.Previous, prev.Next) {
				return &ChainError{EntityID: e.EntityID, EntitySeq: e.EntitySeq, Reason: "previous snapshot does not match prior state"}
			}
		}
		prev = e
	}
	return nil
}

// Replay verifies the history and returns the final snapshot. Decoding the
// result into the entity type reconstructs its current state.
func Replay(entries []Entry) (json.RawMessage, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	if err := VerifyChain(entries); err != nil {
		return nil, err
	}
	return entries[len(entries)-1].Next, nil
}
