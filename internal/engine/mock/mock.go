// Package mock is the only inference engine adapter this daemon ships,
// generalized from the teacher's deterministic hash-seeded Embed into
// tensor-shaped output, per spec.md §1's framing of the real tensor
// runtime as an opaque out-of-scope collaborator.
//
// A mock model file is a small JSON descriptor (not real weights):
//
//	{"inputs":[{"name":"x","dtype":"float32","shape":[1,4]}],
//	 "outputs":[{"name":"y","dtype":"float32","shape":[1,2]}]}
//
// If a model file is missing or doesn't parse, OpenSession falls back to a
// single default float32 input/output pair so package authors can still
// exercise the pipeline without a descriptor.
package mock

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"os"

	"github.com/yungbote/neurod/internal/engine"
	"github.com/yungbote/neurod/internal/platform/apierr"
	"github.com/yungbote/neurod/internal/tensor"
)

type descriptor struct {
	Inputs  []ioSpecJSON `json:"inputs"`
	Outputs []ioSpecJSON `json:"outputs"`
}

type ioSpecJSON struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
	Shape []int  `json:"shape"`
}

var defaultSpec = engine.IOSpec{Name: "x", DType: tensor.Float32, Shape: []int{1}}

type Engine struct{}

func New() *Engine { return &Engine{} }

func (e *Engine) OpenSession(ctx context.Context, path string) (engine.Session, error) {
	_ = ctx
	ins, outs := loadDescriptor(path)
	return &session{path: path, inputs: ins, outputs: outs}, nil
}

func loadDescriptor(path string) (ins, outs []engine.IOSpec) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return []engine.IOSpec{defaultSpec}, []engine.IOSpec{defaultSpec}
	}
	var d descriptor
	if err := json.Unmarshal(raw, &d); err != nil || len(d.Inputs) == 0 || len(d.Outputs) == 0 {
		return []engine.IOSpec{defaultSpec}, []engine.IOSpec{defaultSpec}
	}
	for _, in := range d.Inputs {
		ins = append(ins, engine.IOSpec{Name: in.Name, DType: tensor.DType(in.DType), Shape: in.Shape})
	}
	for _, out := range d.Outputs {
		outs = append(outs, engine.IOSpec{Name: out.Name, DType: tensor.DType(out.DType), Shape: out.Shape})
	}
	return ins, outs
}

type session struct {
	path    string
	inputs  []engine.IOSpec
	outputs []engine.IOSpec
}

func (s *session) Inputs() []engine.IOSpec  { return s.inputs }
func (s *session) Outputs() []engine.IOSpec { return s.outputs }
func (s *session) Close() error             { return nil }

// Run synthesizes deterministic output tensors by hashing the session's
// path, the requested output name, and the input bytes, then filling each
// output's declared shape with bytes derived from that hash. Same inputs
// always produce the same outputs, mirroring the teacher's Embed's
// hash-seeded determinism.
func (s *session) Run(ctx context.Context, outputNames []string, inputs map[string]tensor.Tensor) (map[string]tensor.Tensor, error) {
	select {
	case <-ctx.Done():
		return nil, apierr.Wrap(apierr.JobInterrupted, ctx.Err())
	default:
	}

	specByName := make(map[string]engine.IOSpec, len(s.outputs))
	for _, o := range s.outputs {
		specByName[o.Name] = o
	}

	out := make(map[string]tensor.Tensor, len(outputNames))
	for _, name := range outputNames {
		spec, ok := specByName[name]
		if !ok {
			return nil, apierr.New(apierr.ModelRunError, "model has no output named "+name, nil)
		}
		size, ok := tensor.ElemSize(spec.DType)
		if !ok {
			return nil, apierr.New(apierr.ModelRunError, "model output "+name+" declares unsupported dtype "+string(spec.DType), nil)
		}
		n := tensor.NumElements(spec.Shape)
		data := deterministicBytes(s.path, name, inputs, n*size)
		out[name] = tensor.Tensor{DType: spec.DType, Shape: append([]int(nil), spec.Shape...), Data: data}
	}
	return out, nil
}

// deterministicBytes derives n bytes of output from (path, outputName,
// inputs) by hashing a running counter into a seed block, re-hashing as
// each 32-byte block is exhausted. Same arguments always produce the same
// bytes; different arguments very likely produce different ones.
func deterministicBytes(path, outputName string, inputs map[string]tensor.Tensor, n int) []byte {
	base := sha256.New()
	base.Write([]byte(path))
	base.Write([]byte{0})
	base.Write([]byte(outputName))
	for _, name := range sortedKeys(inputs) {
		base.Write([]byte(name))
		base.Write(inputs[name].Data)
	}
	seed := base.Sum(nil)

	out := make([]byte, n)
	var counter uint32
	for written := 0; written < n; {
		block := sha256.New()
		block.Write(seed)
		var ctrBuf [4]byte
		binary.LittleEndian.PutUint32(ctrBuf[:], counter)
		block.Write(ctrBuf[:])
		chunk := block.Sum(nil)
		copy(out[written:], chunk)
		written += len(chunk)
		counter++
	}
	return out
}

func sortedKeys(m map[string]tensor.Tensor) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
