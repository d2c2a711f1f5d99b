package movement

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNotFound  = errors.New("movement not found")
	ErrDuplicate = errors.New("movement already registered")
	ErrFrozen    = errors.New("movement registry is frozen")
)

// Registry resolves definitions by body part and movement type. It is
// populated at startup and frozen; once frozen it is safe for concurrent
// reads without locking.
type Registry struct {
	byPart map[string]map[string]*Definition
	frozen bool
}

func NewRegistry() *Registry {
	return &Registry{byPart: make(map[string]map[string]*Definition)}
}

// Register adds def, refusing to overwrite an existing entry.
func (r *Registry) Register(def *Definition) error {
	return r.put(def, false)
}

// Replace adds def, overwriting any existing entry for the same key.
func (r *Registry) Replace(def *Definition) error {
	return r.put(def, true)
}

func (r *Registry) put(def *Definition, overwrite bool) error {
	if r.frozen {
		return ErrFrozen
	}
	if def == nil {
		return errors.New("nil movement definition")
	}
	if err := def.validate(); err != nil {
		return err
	}
	moves, ok := r.byPart[def.BodyPart]
	if !ok {
		moves = make(map[string]*Definition)
		r.byPart[def.BodyPart] = moves
	}
	if _, exists := moves[def.MovementType]; exists && !overwrite {
		return fmt.Errorf("%w: %s", ErrDuplicate, def.Key())
	}
	moves[def.MovementType] = def
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.frozen = true
}

func (r *Registry) Frozen() bool {
	return r.frozen
}

// Resolve returns the definition for the pair or ErrNotFound.
func (r *Registry) Resolve(bodyPart, movementType string) (*Definition, error) {
	moves, ok := r.byPart[bodyPart]
	if !ok {
		return nil, fmt.Errorf("%w: unknown body part %q", ErrNotFound, bodyPart)
	}
	def, ok := moves[movementType]
	if !ok {
		return nil, fmt.Errorf("%w: unknown movement type for %s: %q", ErrNotFound, bodyPart, movementType)
	}
	return def, nil
}

// List returns sorted movement types per body part. A non-empty bodyPart
// restricts the result to that body part (empty map when unknown).
func (r *Registry) List(bodyPart string) map[string][]string {
	out := make(map[string][]string)
	for part, moves := range r.byPart {
		if bodyPart != "" && part != bodyPart {
			continue
		}
		types := make([]string, 0, len(moves))
		for mt := range moves {
			types = append(types, mt)
		}
		sort.Strings(types)
		out[part] = types
	}
	return out
}

// Definitions returns every entry ordered by body part then movement type.
func (r *Registry) Definitions() []*Definition {
	var out []*Definition
	for _, moves := range r.byPart {
		for _, def := range moves {
			out = append(out, def)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key() < out[j].Key()
	})
	return out
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	n := 0
	for _, moves := range r.byPart {
		n += len(moves)
	}
	return n
}
