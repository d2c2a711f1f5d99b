package movement

import (
	"encoding/json"
	"fmt"
)

// TransformKind enumerates the primary-angle transforms a movement may apply
// so that 0 reads as anatomical neutral.
type TransformKind int

const (
	Identity TransformKind = iota
	// Complement180 yields 180 - x.
	Complement180
	// Negate yields -x.
	Negate
	// OffsetBy yields x + K.
	OffsetBy
	// ComplementOf yields K - x.
	ComplementOf
)

var transformNames = map[TransformKind]string{
	Identity:      "identity",
	Complement180: "complement_180",
	Negate:        "negate",
	OffsetBy:      "offset_by",
	ComplementOf:  "complement_of",
}

func (k TransformKind) String() string {
	if name, ok := transformNames[k]; ok {
		return name
	}
	return fmt.Sprintf("transform(%d)", int(k))
}

// Transform is a serialisable primary-angle transform.
type Transform struct {
	Kind TransformKind
	K    float64
}

// Apply evaluates the transform.
func (t Transform) Apply(x float64) float64 {
	switch t.Kind {
	case Complement180:
		return 180 - x
	case Negate:
		return -x
	case OffsetBy:
		return x + t.K
	case ComplementOf:
		return t.K - x
	default:
		return x
	}
}

func (t Transform) String() string {
	switch t.Kind {
	case OffsetBy, ComplementOf:
		return fmt.Sprintf("%s(%g)", t.Kind, t.K)
	default:
		return t.Kind.String()
	}
}

type transformJSON struct {
	Kind string  `json:"kind"`
	K    float64 `json:"k,omitempty"`
}

func (t Transform) MarshalJSON() ([]byte, error) {
	return json.Marshal(transformJSON{Kind: t.Kind.String(), K: t.K})
}

func (t *Transform) UnmarshalJSON(data []byte) error {
	var raw transformJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for kind, name := range transformNames {
		if name == raw.Kind {
			t.Kind = kind
			t.K = raw.K
			return nil
		}
	}
	return fmt.Errorf("unknown transform kind %q", raw.Kind)
}
