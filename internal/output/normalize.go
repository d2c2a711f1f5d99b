package output

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"rom-stream-go/internal/types"
)

// NormalizeJSONValue rewrites a generically decoded CBOR value so that
// encoding/json accepts it: map keys become strings and typed-array tags
// become float slices.
func NormalizeJSONValue(value any) any {
	switch v := value.(type) {
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[fmt.Sprint(k)] = NormalizeJSONValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = NormalizeJSONValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = NormalizeJSONValue(item)
		}
		return out
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(v))
	case cbor.Tag:
		if rows, err := types.DecodeMatrix(v); err == nil {
			return rows
		}
		if vec, err := types.DecodeVector(v); err == nil {
			return vec
		}
		return map[string]any{"tag": v.Number, "content": NormalizeJSONValue(v.Content)}
	default:
		return v
	}
}
