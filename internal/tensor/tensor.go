// Package tensor implements the wire codec for tensors exchanged over the
// HTTP surface: {"dtype", "shape", "data": base64(raw little-endian bytes)}.
package tensor

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/yungbote/neurod/internal/platform/apierr"
)

type DType string

const (
	Int8    DType = "int8"
	Int16   DType = "int16"
	Int32   DType = "int32"
	Int64   DType = "int64"
	Uint8   DType = "uint8"
	Uint16  DType = "uint16"
	Uint32  DType = "uint32"
	Uint64  DType = "uint64"
	Float16 DType = "float16"
	Float32 DType = "float32"
	Float64 DType = "float64"
	// Float128 has no native Go representation; it is carried as an opaque
	// 16-byte-per-element payload with round-trip-only support (no
	// arithmetic), matching the wire contract's byte-exactness requirement.
	Float128 DType = "float128"
)

var elemSize = map[DType]int{
	Int8: 1, Uint8: 1,
	Int16: 2, Uint16: 2, Float16: 2,
	Int32: 4, Uint32: 4, Float32: 4,
	Int64: 8, Uint64: 8, Float64: 8,
	Float128: 16,
}

// Tensor is the in-memory representation: a flat row-major byte buffer plus
// dtype and shape. Go slices are always contiguous, so unlike the Python
// original there is no separate "is this C-contiguous" check on encode.
type Tensor struct {
	DType DType
	Shape []int
	Data  []byte
}

// wireTensor is the JSON wire shape from spec.md §4.9.
type wireTensor struct {
	DType string `json:"dtype"`
	Shape []int  `json:"shape"`
	Data  string `json:"data"`
}

// ElemSize returns the per-element byte width of dtype, and whether dtype
// is known.
func ElemSize(dtype DType) (int, bool) {
	n, ok := elemSize[dtype]
	return n, ok
}

func NumElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Encode renders t as the wire JSON-shaped map.
func Encode(t Tensor) map[string]any {
	return map[string]any{
		"dtype": string(t.DType),
		"shape": append([]int(nil), t.Shape...),
		"data":  base64.StdEncoding.EncodeToString(t.Data),
	}
}

// decodeShape accepts the shape both as JSON decodes it ([]any of float64)
// and as Encode builds it in-process ([]int), so Decode(Encode(t)) round
// trips without an intervening JSON cycle.
func decodeShape(raw any) ([]int, bool) {
	switch v := raw.(type) {
	case []int:
		shape := append([]int(nil), v...)
		for _, d := range shape {
			if d < 0 {
				return nil, false
			}
		}
		return shape, true
	case []any:
		shape := make([]int, 0, len(v))
		for _, e := range v {
			f, ok := e.(float64)
			if !ok || f != math.Trunc(f) || f < 0 {
				return nil, false
			}
			shape = append(shape, int(f))
		}
		return shape, true
	default:
		return nil, false
	}
}

// Decode parses the wire shape into a Tensor, validating that the declared
// dtype/shape are internally consistent with the byte payload length.
func Decode(raw map[string]any) (Tensor, error) {
	dtypeRaw, _ := raw["dtype"].(string)
	dtype := DType(dtypeRaw)
	size, ok := elemSize[dtype]
	if !ok {
		return Tensor{}, apierr.New(apierr.InvalidTensor, fmt.Sprintf("unsupported dtype %q", dtypeRaw), nil)
	}

	shape, ok := decodeShape(raw["shape"])
	if !ok {
		return Tensor{}, apierr.New(apierr.InvalidTensor, "shape must be an array of non-negative integers", nil)
	}

	dataRaw, _ := raw["data"].(string)
	data, err := base64.StdEncoding.DecodeString(dataRaw)
	if err != nil {
		return Tensor{}, apierr.New(apierr.InvalidTensor, "data is not valid base64", nil)
	}

	want := NumElements(shape) * size
	if len(data) != want {
		return Tensor{}, apierr.New(apierr.InvalidTensor,
			fmt.Sprintf("data length %d does not match shape %v for dtype %s (want %d bytes)", len(data), shape, dtype, want), nil)
	}

	return Tensor{DType: dtype, Shape: shape, Data: data}, nil
}

// IsTensorLike reports whether raw looks like a wire tensor object: a map
// carrying "dtype", "shape" and "data" keys. Validate does not call it; a
// field declared "tensor" is always decoded.
func IsTensorLike(raw any) bool {
	m, ok := raw.(map[string]any)
	if !ok {
		return false
	}
	_, hasDtype := m["dtype"]
	_, hasShape := m["shape"]
	_, hasData := m["data"]
	return hasDtype && hasShape && hasData
}

// FromFloat32 builds a Tensor from a flat float32 slice, little-endian
// encoded, for use by the mock inference engine and tests.
func FromFloat32(shape []int, values []float32) Tensor {
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return Tensor{DType: Float32, Shape: shape, Data: buf}
}

// ToFloat32 reinterprets a Float32 tensor's bytes back into a flat slice.
func ToFloat32(t Tensor) ([]float32, error) {
	if t.DType != Float32 {
		return nil, apierr.New(apierr.InvalidTensor, fmt.Sprintf("expected float32, got %s", t.DType), nil)
	}
	n := len(t.Data) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(t.Data[i*4:]))
	}
	return out, nil
}
