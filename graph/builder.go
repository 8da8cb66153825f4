// Package graph models deep computation graphs as declarative stage lists
// with named tensors. A Builder wires stages together, validating shapes and
// acyclicity as it goes; Compile binds a training configuration and returns
// an immutable Model.
package graph

import (
	"fmt"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"

	"github.com/tsawler/go-colorize/layers"
	"github.com/tsawler/go-colorize/training"
)

// Tensor is a symbolic reference to a multi-dimensional array produced by a
// graph input or stage. Shapes are NCHW with a -1 batch dimension. Tensors
// are immutable once produced.
type Tensor struct {
	Name  string `json:"name"`
	Shape []int  `json:"shape"`
}

// Stage is a named transformation consuming one or more tensors and
// producing exactly one.
type Stage struct {
	Spec   layers.LayerSpec `json:"spec"`
	Inputs []string         `json:"inputs"`
	Output Tensor           `json:"output"`
}

// Builder accumulates stages into a directed acyclic graph. The first
// construction error is latched and reported by Compile; intermediate
// calls after an error return zero tensors and do nothing.
type Builder struct {
	name     string
	inputs   []Tensor
	stages   []*Stage
	tensors  map[string]Tensor
	dag      graph.Graph[string, string]
	err      error
	compiled bool
}

// NewBuilder creates an empty graph builder.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:    name,
		tensors: make(map[string]Tensor),
		dag:     graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles()),
	}
}

// Err returns the first construction error, if any.
func (b *Builder) Err() error {
	return b.err
}

func (b *Builder) fail(err error) Tensor {
	if b.err == nil {
		b.err = err
	}
	return Tensor{}
}

// Input declares a named graph input. shape is [channels, height, width];
// the batch dimension is left unspecified.
func (b *Builder) Input(name string, shape []int) Tensor {
	if b.err != nil {
		return Tensor{}
	}
	if name == "" {
		return b.fail(errors.New("input name cannot be empty"))
	}
	if _, exists := b.tensors[name]; exists {
		return b.fail(errors.Errorf("duplicate tensor name %q", name))
	}
	if len(shape) != 3 {
		return b.fail(errors.Errorf("input %s: shape must be [channels, height, width], got %v", name, shape))
	}
	t := Tensor{Name: name, Shape: append([]int{-1}, shape...)}
	if err := b.dag.AddVertex(name); err != nil {
		return b.fail(errors.Wrapf(err, "input %s", name))
	}
	b.inputs = append(b.inputs, t)
	b.tensors[name] = t
	return t
}

// Layer applies a stage specification to the given input tensors and
// returns the stage's output tensor. The stage name doubles as the output
// tensor name.
func (b *Builder) Layer(spec layers.LayerSpec, inputs ...Tensor) Tensor {
	if b.err != nil {
		return Tensor{}
	}
	if spec.Name == "" {
		spec.Name = fmt.Sprintf("%s_%d", spec.Type.String(), len(b.stages)+1)
	}
	if _, exists := b.tensors[spec.Name]; exists {
		return b.fail(errors.Errorf("duplicate tensor name %q", spec.Name))
	}
	if len(inputs) == 0 {
		return b.fail(errors.Errorf("layer %s has no inputs", spec.Name))
	}

	refs := make([]layers.TensorRef, len(inputs))
	names := make([]string, len(inputs))
	for i, in := range inputs {
		known, ok := b.tensors[in.Name]
		if !ok {
			return b.fail(errors.Errorf("layer %s: input tensor %q does not belong to this graph", spec.Name, in.Name))
		}
		refs[i] = layers.TensorRef{Name: known.Name, Shape: known.Shape}
		names[i] = known.Name
	}

	if err := layers.InferShapes(&spec, refs); err != nil {
		return b.fail(errors.Wrapf(err, "layer %s", spec.Name))
	}

	if err := b.dag.AddVertex(spec.Name); err != nil {
		return b.fail(errors.Wrapf(err, "layer %s", spec.Name))
	}
	for _, in := range names {
		if err := b.dag.AddEdge(in, spec.Name); err != nil && err != graph.ErrEdgeAlreadyExists {
			return b.fail(errors.Wrapf(err, "edge %s -> %s", in, spec.Name))
		}
	}

	out := Tensor{Name: spec.Name, Shape: append([]int(nil), spec.OutputShape...)}
	b.stages = append(b.stages, &Stage{Spec: spec, Inputs: names, Output: out})
	b.tensors[spec.Name] = out
	return out
}

// Compile validates the accumulated topology, binds the training
// configuration, and returns the finished model. Compilation is one-shot:
// a second call on the same builder is an error, and the returned model
// shares no mutable state with the builder.
func (b *Builder) Compile(output Tensor, cfg training.Config) (*Model, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.compiled {
		return nil, errors.Errorf("graph %s is already compiled", b.name)
	}
	if len(b.inputs) == 0 {
		return nil, errors.Errorf("graph %s has no inputs", b.name)
	}
	if len(b.stages) == 0 {
		return nil, errors.Errorf("cannot compile empty graph %s", b.name)
	}
	if _, ok := b.tensors[output.Name]; !ok || output.Name == "" {
		return nil, errors.Errorf("output tensor %q does not belong to graph %s", output.Name, b.name)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "graph %s", b.name)
	}

	if err := b.checkReachability(output.Name); err != nil {
		return nil, err
	}

	// Pure fold over the stage list: stages were appended in dependency
	// order, so a single pass accumulates the parameter metadata.
	model := &Model{
		Name:   b.name,
		Inputs: append([]Tensor(nil), b.inputs...),
		Output: b.tensors[output.Name],
		Stages: make([]Stage, len(b.stages)),
		Config: cfg,
	}
	for i, st := range b.stages {
		model.Stages[i] = Stage{
			Spec:   st.Spec.Clone(),
			Inputs: append([]string(nil), st.Inputs...),
			Output: Tensor{Name: st.Output.Name, Shape: append([]int(nil), st.Output.Shape...)},
		}
		model.TotalParameters += st.Spec.ParameterCount
	}
	model.Compiled = true
	b.compiled = true
	return model, nil
}

// checkReachability verifies that every stage contributes to the output and
// that every declared input is consumed.
func (b *Builder) checkReachability(output string) error {
	preds, err := b.dag.PredecessorMap()
	if err != nil {
		return errors.Wrap(err, "building predecessor map")
	}

	reached := make(map[string]bool)
	queue := []string{output}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if reached[cur] {
			continue
		}
		reached[cur] = true
		for p := range preds[cur] {
			queue = append(queue, p)
		}
	}

	for _, st := range b.stages {
		if !reached[st.Spec.Name] {
			return errors.Errorf("stage %s does not reach the graph output %s", st.Spec.Name, output)
		}
	}
	for _, in := range b.inputs {
		if !reached[in.Name] {
			return errors.Errorf("input %s is not consumed by the graph", in.Name)
		}
	}
	return nil
}
