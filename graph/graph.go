package graph

import (
	"fmt"
	"io"
	"strings"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
	"github.com/pkg/errors"

	"github.com/tsawler/go-colorize/layers"
	"github.com/tsawler/go-colorize/training"
)

// Model is a compiled computation graph: an ordered stage list with
// resolved shapes, named inputs, a single output, and a bound training
// configuration. Models are immutable after compilation.
type Model struct {
	Name            string          `json:"name"`
	Inputs          []Tensor        `json:"inputs"`
	Output          Tensor          `json:"output"`
	Stages          []Stage         `json:"stages"`
	Config          training.Config `json:"config"`
	TotalParameters int64           `json:"total_parameters"`
	Compiled        bool            `json:"compiled"`
}

// Stage returns the named stage, if present.
func (m *Model) Stage(name string) (*Stage, bool) {
	for i := range m.Stages {
		if m.Stages[i].Spec.Name == name {
			return &m.Stages[i], true
		}
	}
	return nil, false
}

// Summary returns a human-readable model summary.
func (m *Model) Summary() string {
	if !m.Compiled {
		return "Model not compiled"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Model: %s\n", m.Name)
	for _, in := range m.Inputs {
		fmt.Fprintf(&sb, "Input %s: %v\n", in.Name, in.Shape)
	}
	fmt.Fprintf(&sb, "Output %s: %v\n", m.Output.Name, m.Output.Shape)
	fmt.Fprintf(&sb, "Loss: %s  Optimizer: %s\n", m.Config.Loss, m.Config.Optimizer.Type)
	fmt.Fprintf(&sb, "Total Parameters: %d\n", m.TotalParameters)
	fmt.Fprintf(&sb, "Stages: %d\n\n", len(m.Stages))

	for i, st := range m.Stages {
		fmt.Fprintf(&sb, "Stage %d: %s (%s)\n", i+1, st.Spec.Name, st.Spec.Type.String())
		fmt.Fprintf(&sb, "  Inputs: %v -> %v\n", st.Inputs, st.Spec.InputShapes)
		fmt.Fprintf(&sb, "  Output: %v\n", st.Output.Shape)
		if st.Spec.ParameterCount > 0 {
			fmt.Fprintf(&sb, "  Params: %d\n", st.Spec.ParameterCount)
		}
	}
	return sb.String()
}

// DOT writes the model topology in Graphviz DOT format.
func (m *Model) DOT(w io.Writer) error {
	g := graph.New(graph.StringHash, graph.Directed())
	for _, in := range m.Inputs {
		if err := g.AddVertex(in.Name, graph.VertexAttribute("shape", "box")); err != nil {
			return errors.Wrapf(err, "vertex %s", in.Name)
		}
	}
	for _, st := range m.Stages {
		label := fmt.Sprintf("%s\\n%s %v", st.Spec.Name, st.Spec.Type, st.Output.Shape[1:])
		if err := g.AddVertex(st.Spec.Name, graph.VertexAttribute("label", label)); err != nil {
			return errors.Wrapf(err, "vertex %s", st.Spec.Name)
		}
	}
	for _, st := range m.Stages {
		for _, in := range st.Inputs {
			if err := g.AddEdge(in, st.Spec.Name); err != nil && err != graph.ErrEdgeAlreadyExists {
				return errors.Wrapf(err, "edge %s -> %s", in, st.Spec.Name)
			}
		}
	}
	return draw.DOT(g, w)
}

// OutputBounds propagates static value bounds backwards from the output
// through bounded activations and scale stages. ok is false when the
// output is not statically bounded.
func (m *Model) OutputBounds() (lo, hi float64, ok bool) {
	factor := 1.0
	name := m.Output.Name
	for {
		st, found := m.Stage(name)
		if !found {
			return 0, 0, false
		}
		switch st.Spec.Type {
		case layers.Scale:
			f, err := st.Spec.ScaleFactor()
			if err != nil {
				return 0, 0, false
			}
			factor *= f
			name = st.Inputs[0]
		case layers.Tanh:
			return boundsWithFactor(-1, 1, factor)
		case layers.Softmax:
			return boundsWithFactor(0, 1, factor)
		case layers.Conv2D, layers.Conv2DTranspose:
			if st.Spec.Activation() == layers.ActivationTanh {
				return boundsWithFactor(-1, 1, factor)
			}
			return 0, 0, false
		default:
			return 0, 0, false
		}
	}
}

func boundsWithFactor(lo, hi, factor float64) (float64, float64, bool) {
	lo, hi = lo*factor, hi*factor
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi, true
}
