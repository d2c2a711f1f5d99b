// Package session persists ROM trackers per (session, body part, movement)
// through a storage.Store.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"rom-stream-go/internal/monitoring"
	"rom-stream-go/internal/rom"
	"rom-stream-go/internal/storage"
)

const keyPrefix = "rom:"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidSessionID = errors.New("invalid session id")
)

// Manager reads and writes tracker records. It holds no tracker state of its
// own; callers serialise work on a triple with Lock.
type Manager struct {
	store storage.Store
	locks keyedMutex
}

func NewManager(store storage.Store) *Manager {
	return &Manager{store: store, locks: keyedMutex{held: make(map[string]*lockEntry)}}
}

// Store exposes the underlying store for collaborators sharing it.
func (m *Manager) Store() storage.Store { return m.store }

// Key returns the storage key of a tracker.
func Key(sessionID, bodyPart, movementType string) string {
	return keyPrefix + sessionID + ":" + bodyPart + ":" + movementType
}

func sessionPrefix(sessionID string) string {
	return keyPrefix + sessionID + ":"
}

// MaxSessionIDLen bounds session ids, which also appear in report file names.
const MaxSessionIDLen = 128

// ValidateSessionID accepts 1 to MaxSessionIDLen characters from
// [A-Za-z0-9_-]. That keeps storage keys partitioned and file names inside
// their directory.
func ValidateSessionID(id string) error {
	if id == "" || len(id) > MaxSessionIDLen {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	for i := 0; i < len(id); i++ {
		switch ch := id[i]; {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '_', ch == '-':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
		}
	}
	return nil
}

// GetOrCreateTracker loads the stored tracker or returns a fresh one. A fresh
// tracker is not persisted until SaveTracker.
func (m *Manager) GetOrCreateTracker(ctx context.Context, sessionID, bodyPart, movementType string) (*rom.Tracker, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	data, err := m.store.Get(ctx, Key(sessionID, bodyPart, movementType))
	if errors.Is(err, storage.ErrNotFound) {
		return rom.NewTracker(bodyPart, movementType), nil
	}
	if err != nil {
		return nil, err
	}
	var tr rom.Tracker
	if err := cbor.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("decode tracker %s: %w", Key(sessionID, bodyPart, movementType), err)
	}
	tr.BodyPart, tr.MovementType = bodyPart, movementType
	return &tr, nil
}

// SaveTracker writes tr under its session key.
func (m *Manager) SaveTracker(ctx context.Context, sessionID string, tr *rom.Tracker) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	data, err := cbor.Marshal(tr)
	if err != nil {
		return fmt.Errorf("encode tracker: %w", err)
	}
	return m.store.Set(ctx, Key(sessionID, tr.BodyPart, tr.MovementType), data)
}

// Bounds is the min/max/range triple of a session summary.
type Bounds struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Range float64 `json:"range"`
}

// Summary is the stored state of one movement in a session.
type Summary struct {
	ROM             Bounds `json:"rom"`
	FrameCount      int    `json:"frame_count"`
	ValidFrameCount int    `json:"valid_frame_count"`
}

// View maps body_part -> movement_type -> Summary.
type View map[string]map[string]Summary

// GetSession returns every tracker stored for sessionID.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (View, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	prefix := sessionPrefix(sessionID)
	entries, err := m.store.GetPattern(ctx, prefix)
	if err != nil {
		return nil, err
	}
	view := make(View)
	for key, data := range entries {
		bodyPart, movementType, ok := strings.Cut(strings.TrimPrefix(key, prefix), ":")
		if !ok {
			continue
		}
		var tr rom.Tracker
		if err := cbor.Unmarshal(data, &tr); err != nil {
			monitoring.Logf("session: skipping undecodable record %s: %v", key, err)
			continue
		}
		snap := tr.Snapshot()
		if view[bodyPart] == nil {
			view[bodyPart] = make(map[string]Summary)
		}
		view[bodyPart][movementType] = Summary{
			ROM:             Bounds{Min: snap.Min, Max: snap.Max, Range: snap.Range},
			FrameCount:      tr.FrameCount,
			ValidFrameCount: tr.ValidFrameCount,
		}
	}
	if len(view) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return view, nil
}

// ClearSession removes every tracker of sessionID. Clearing an empty session
// is not an error.
func (m *Manager) ClearSession(ctx context.Context, sessionID string) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	return m.store.DeletePattern(ctx, sessionPrefix(sessionID))
}

// Lock serialises in-process work on one (session, body part, movement)
// triple. The returned func releases it.
func (m *Manager) Lock(sessionID, bodyPart, movementType string) (unlock func()) {
	return m.locks.lock(Key(sessionID, bodyPart, movementType))
}
