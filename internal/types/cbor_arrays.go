package types

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// RFC 8746 tags used by the pose worker and keypoint producers.
const (
	TagMultiDimArray = 40
	TagUint8         = 64
	TagUint16LE      = 69
	TagUint32LE      = 70
	TagFloat32LE     = 85
	TagFloat64LE     = 86
)

// DecodeMatrix decodes a tag-40 [rows, cols] array into float64 rows.
func DecodeMatrix(value any) ([][]float64, error) {
	tag, ok := value.(cbor.Tag)
	if !ok || tag.Number != TagMultiDimArray {
		return nil, fmt.Errorf("expected multidim tag 40")
	}

	items, ok := tag.Content.([]any)
	if !ok || len(items) != 2 {
		return nil, fmt.Errorf("invalid multidim array content")
	}

	dimsRaw, ok := items[0].([]any)
	if !ok || len(dimsRaw) != 2 {
		return nil, fmt.Errorf("invalid multidim dimensions")
	}

	rows, err := ToInt(dimsRaw[0])
	if err != nil {
		return nil, err
	}
	cols, err := ToInt(dimsRaw[1])
	if err != nil {
		return nil, err
	}

	flat, err := DecodeVector(items[1])
	if err != nil {
		return nil, err
	}
	if err := checkDims(rows, cols, len(flat)); err != nil {
		return nil, err
	}
	return reshape(flat, rows, cols)
}

// DecodeVector decodes a typed array tag, or a plain CBOR array of numbers,
// into float64 values.
func DecodeVector(value any) ([]float64, error) {
	if list, ok := value.([]any); ok {
		out := make([]float64, len(list))
		for i, v := range list {
			f, err := ToFloat(v)
			if err != nil {
				return nil, err
			}
			out[i] = f
		}
		return out, nil
	}

	tag, ok := value.(cbor.Tag)
	if !ok {
		return nil, fmt.Errorf("expected typed array tag, got %T", value)
	}
	data, ok := tag.Content.([]byte)
	if !ok {
		return nil, fmt.Errorf("unsupported typed array content %T", tag.Content)
	}

	switch tag.Number {
	case TagUint8:
		out := make([]float64, len(data))
		for i, b := range data {
			out[i] = float64(b)
		}
		return out, nil
	case TagUint16LE:
		return widen(data, 2, func(b []byte) float64 { return float64(binary.LittleEndian.Uint16(b)) }), nil
	case TagUint32LE:
		return widen(data, 4, func(b []byte) float64 { return float64(binary.LittleEndian.Uint32(b)) }), nil
	case TagFloat32LE:
		return widen(data, 4, func(b []byte) float64 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}), nil
	case TagFloat64LE:
		return widen(data, 8, func(b []byte) float64 {
			return math.Float64frombits(binary.LittleEndian.Uint64(b))
		}), nil
	default:
		return nil, fmt.Errorf("unsupported typed array tag %d", tag.Number)
	}
}

func widen(data []byte, size int, conv func([]byte) float64) []float64 {
	out := make([]float64, len(data)/size)
	for i := range out {
		out[i] = conv(data[i*size : (i+1)*size])
	}
	return out
}

// checkDims rejects shapes that do not describe exactly n values.
func checkDims(rows, cols, n int) error {
	if rows < 0 || cols < 0 {
		return fmt.Errorf("negative multidim dimensions [%d, %d]", rows, cols)
	}
	if cols == 0 {
		if rows != 0 || n != 0 {
			return fmt.Errorf("invalid multidim dimensions [%d, %d] for %d values", rows, cols, n)
		}
		return nil
	}
	if rows > n/cols || rows*cols != n {
		return fmt.Errorf("invalid multidim dimensions [%d, %d] for %d values", rows, cols, n)
	}
	return nil
}

func reshape(flat []float64, rows, cols int) ([][]float64, error) {
	if rows*cols != len(flat) {
		return nil, errors.New("dimension mismatch")
	}
	out := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		row := make([]float64, cols)
		copy(row, flat[r*cols:(r+1)*cols])
		out[r] = row
	}
	return out, nil
}

// Float32Array encodes values as a little-endian float32 typed array.
func Float32Array(values []float64) cbor.Tag {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
	}
	return cbor.Tag{Number: TagFloat32LE, Content: buf}
}

// Float32Matrix encodes equally sized rows as a tag-40 float32 array.
func Float32Matrix(rows [][]float64) cbor.Tag {
	cols := 0
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	flat := make([]float64, 0, len(rows)*cols)
	for _, row := range rows {
		flat = append(flat, row...)
	}
	return cbor.Tag{
		Number:  TagMultiDimArray,
		Content: []any{[]any{len(rows), cols}, Float32Array(flat)},
	}
}

func ToInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case uint32:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("unsupported int type %T", v)
	}
}

func ToFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("unsupported float type %T", v)
	}
}
