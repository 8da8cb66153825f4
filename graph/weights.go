package graph

import (
	"math"
	"math/rand"
	"time"

	"github.com/tsawler/go-colorize/layers"
)

// Parameter is a learnable tensor allocated for a compiled model. The name
// follows the "<stage>.<kind>" convention.
type Parameter struct {
	Name  string    `json:"name"`
	Layer string    `json:"layer"`
	Kind  string    `json:"kind"` // "weight", "bias", "gamma", "beta"
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// InitializeParameters allocates fresh parameter storage for every
// learnable stage, honoring each stage's initializer. Convolution kernels
// default to Glorot uniform; the random_normal/ones scheme is used where a
// stage requests it. Each call returns independent storage, so two models
// built from the same topology never share weights.
func (m *Model) InitializeParameters(rng *rand.Rand) []Parameter {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	var params []Parameter
	for _, st := range m.Stages {
		spec := st.Spec
		switch spec.Type {
		case layers.Conv2D, layers.Conv2DTranspose:
			shapes := spec.ParameterShapes
			if len(shapes) == 0 {
				continue
			}
			params = append(params, Parameter{
				Name:  spec.Name + ".weight",
				Layer: spec.Name,
				Kind:  "weight",
				Shape: append([]int(nil), shapes[0]...),
				Data:  initKernel(rng, spec, shapes[0]),
			})
			if len(shapes) > 1 {
				params = append(params, Parameter{
					Name:  spec.Name + ".bias",
					Layer: spec.Name,
					Kind:  "bias",
					Shape: append([]int(nil), shapes[1]...),
					Data:  initBias(spec, shapes[1]),
				})
			}
		case layers.BatchNorm:
			if len(spec.ParameterShapes) != 2 {
				continue
			}
			params = append(params,
				Parameter{
					Name:  spec.Name + ".gamma",
					Layer: spec.Name,
					Kind:  "gamma",
					Shape: append([]int(nil), spec.ParameterShapes[0]...),
					Data:  constant(numElems(spec.ParameterShapes[0]), 1),
				},
				Parameter{
					Name:  spec.Name + ".beta",
					Layer: spec.Name,
					Kind:  "beta",
					Shape: append([]int(nil), spec.ParameterShapes[1]...),
					Data:  constant(numElems(spec.ParameterShapes[1]), 0),
				})
		}
	}
	return params
}

func initKernel(rng *rand.Rand, spec layers.LayerSpec, shape []int) []float32 {
	n := numElems(shape)
	data := make([]float32, n)
	switch spec.KernelInitializer() {
	case layers.InitRandomNormal:
		for i := range data {
			data[i] = float32(rng.NormFloat64() * layers.RandomNormalStdDev)
		}
	default: // glorot uniform
		kernel := spec.KernelSize()
		fanIn := float64(shape[1] * kernel * kernel)
		fanOut := float64(shape[0] * kernel * kernel)
		if spec.Type == layers.Conv2DTranspose {
			// transpose kernels are stored [in, out, k, k]
			fanIn, fanOut = fanOut, fanIn
		}
		limit := math.Sqrt(6 / (fanIn + fanOut))
		for i := range data {
			data[i] = float32((rng.Float64()*2 - 1) * limit)
		}
	}
	return data
}

func initBias(spec layers.LayerSpec, shape []int) []float32 {
	switch spec.BiasInitializer() {
	case layers.InitOnes:
		return constant(numElems(shape), 1)
	default:
		return constant(numElems(shape), 0)
	}
}

func constant(n int, v float32) []float32 {
	data := make([]float32, n)
	if v != 0 {
		for i := range data {
			data[i] = v
		}
	}
	return data
}

func numElems(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
