package layers

import "fmt"

// LayerType represents the type of computation graph stage
type LayerType int

const (
	Conv2D LayerType = iota
	Conv2DTranspose
	AvgPool2D
	BatchNorm
	ReLU
	LeakyReLU
	Tanh
	Softmax
	Add
	Scale
)

func (lt LayerType) String() string {
	switch lt {
	case Conv2D:
		return "Conv2D"
	case Conv2DTranspose:
		return "Conv2DTranspose"
	case AvgPool2D:
		return "AvgPool2D"
	case BatchNorm:
		return "BatchNorm"
	case ReLU:
		return "ReLU"
	case LeakyReLU:
		return "LeakyReLU"
	case Tanh:
		return "Tanh"
	case Softmax:
		return "Softmax"
	case Add:
		return "Add"
	case Scale:
		return "Scale"
	default:
		return "Unknown"
	}
}

// Activation names usable as a fused convolution activation.
const (
	ActivationNone = ""
	ActivationReLU = "relu"
	ActivationTanh = "tanh"
)

// Weight and bias initializer names. Glorot uniform is the default for
// convolution kernels; the random-normal/ones pair is the near-zero-mean
// scheme used by skip-connection adapters and decoder transposes.
const (
	InitGlorotUniform = "glorot_uniform"
	InitRandomNormal  = "random_normal"
	InitOnes          = "ones"
	InitZeros         = "zeros"
)

// RandomNormalStdDev is the standard deviation of the random_normal
// initializer.
const RandomNormalStdDev = 0.01

// LayerSpec defines stage configuration for graph construction.
// This is pure configuration - no execution logic.
type LayerSpec struct {
	Type       LayerType              `json:"type"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`

	// Shape information (computed during graph compilation)
	InputShapes [][]int `json:"input_shapes,omitempty"`
	OutputShape []int   `json:"output_shape,omitempty"`

	// Parameter metadata (computed during graph compilation)
	ParameterShapes [][]int `json:"parameter_shapes,omitempty"`
	ParameterCount  int64   `json:"parameter_count,omitempty"`
}

// ConvOption customizes a convolution layer specification.
type ConvOption func(*LayerSpec)

// WithStride sets the spatial stride of a convolution.
func WithStride(stride int) ConvOption {
	return func(ls *LayerSpec) {
		ls.Parameters["stride"] = stride
	}
}

// WithDilation sets the dilation rate of a convolution. A rate above 1
// widens the receptive field without changing the output resolution.
func WithDilation(rate int) ConvOption {
	return func(ls *LayerSpec) {
		ls.Parameters["dilation"] = rate
	}
}

// WithActivation fuses an elementwise activation into a convolution.
func WithActivation(activation string) ConvOption {
	return func(ls *LayerSpec) {
		ls.Parameters["activation"] = activation
	}
}

// WithInitializer overrides the kernel and bias initializers of a
// convolution.
func WithInitializer(kernel, bias string) ConvOption {
	return func(ls *LayerSpec) {
		ls.Parameters["kernel_initializer"] = kernel
		ls.Parameters["bias_initializer"] = bias
	}
}

// NewConv2D creates a 2D convolution specification. Padding is always
// "same": the output resolution equals the input resolution divided by the
// stride.
func NewConv2D(filters, kernelSize int, name string, opts ...ConvOption) LayerSpec {
	spec := LayerSpec{
		Type: Conv2D,
		Name: name,
		Parameters: map[string]interface{}{
			"filters":            filters,
			"kernel_size":        kernelSize,
			"stride":             1,
			"dilation":           1,
			"activation":         ActivationNone,
			"kernel_initializer": InitGlorotUniform,
			"bias_initializer":   InitZeros,
			"use_bias":           true,
		},
	}
	for _, opt := range opts {
		opt(&spec)
	}
	return spec
}

// NewConv2DTranspose creates a transposed 2D convolution specification.
// With stride 2 and same padding the output resolution is double the input
// resolution.
func NewConv2DTranspose(filters, kernelSize int, name string, opts ...ConvOption) LayerSpec {
	spec := LayerSpec{
		Type: Conv2DTranspose,
		Name: name,
		Parameters: map[string]interface{}{
			"filters":            filters,
			"kernel_size":        kernelSize,
			"stride":             1,
			"activation":         ActivationNone,
			"kernel_initializer": InitGlorotUniform,
			"bias_initializer":   InitZeros,
			"use_bias":           true,
		},
	}
	for _, opt := range opts {
		opt(&spec)
	}
	return spec
}

// NewAvgPool2D creates a 2x2 average pooling specification (spatial
// downsampling by a factor of 2).
func NewAvgPool2D(name string) LayerSpec {
	return LayerSpec{
		Type: AvgPool2D,
		Name: name,
		Parameters: map[string]interface{}{
			"pool_size": 2,
			"stride":    2,
		},
	}
}

// NewBatchNorm creates a batch normalization specification over the channel
// dimension.
func NewBatchNorm(name string) LayerSpec {
	return LayerSpec{
		Type: BatchNorm,
		Name: name,
		Parameters: map[string]interface{}{
			"eps":      1e-3,
			"momentum": 0.99,
			"affine":   true,
		},
	}
}

// NewReLU creates a rectifier activation specification.
func NewReLU(name string) LayerSpec {
	return LayerSpec{
		Type:       ReLU,
		Name:       name,
		Parameters: map[string]interface{}{},
	}
}

// NewLeakyReLU creates a leaky rectifier activation specification.
// negativeSlope is the slope applied to negative inputs.
func NewLeakyReLU(negativeSlope float64, name string) LayerSpec {
	return LayerSpec{
		Type: LeakyReLU,
		Name: name,
		Parameters: map[string]interface{}{
			"negative_slope": negativeSlope,
		},
	}
}

// NewTanh creates a hyperbolic tangent activation specification. Output is
// bounded to (-1, 1).
func NewTanh(name string) LayerSpec {
	return LayerSpec{
		Type:       Tanh,
		Name:       name,
		Parameters: map[string]interface{}{},
	}
}

// NewSoftmax creates a softmax activation specification along the given
// axis (1 = channel axis for NCHW tensors).
func NewSoftmax(axis int, name string) LayerSpec {
	return LayerSpec{
		Type: Softmax,
		Name: name,
		Parameters: map[string]interface{}{
			"axis": axis,
		},
	}
}

// NewAdd creates an elementwise addition specification. All inputs must
// agree in spatial resolution and channel count.
func NewAdd(name string) LayerSpec {
	return LayerSpec{
		Type:       Add,
		Name:       name,
		Parameters: map[string]interface{}{},
	}
}

// NewScale creates an elementwise scaling specification: every element of
// the input is multiplied by the fixed factor. No learnable parameters.
func NewScale(factor float64, name string) LayerSpec {
	return LayerSpec{
		Type: Scale,
		Name: name,
		Parameters: map[string]interface{}{
			"factor": factor,
		},
	}
}

// Clone returns a deep copy of the spec. Shape slices and the parameter map
// are copied so the clone shares no storage with the original.
func (ls LayerSpec) Clone() LayerSpec {
	out := ls
	out.Parameters = make(map[string]interface{}, len(ls.Parameters))
	for k, v := range ls.Parameters {
		out.Parameters[k] = v
	}
	if ls.InputShapes != nil {
		out.InputShapes = make([][]int, len(ls.InputShapes))
		for i, s := range ls.InputShapes {
			out.InputShapes[i] = append([]int(nil), s...)
		}
	}
	out.OutputShape = append([]int(nil), ls.OutputShape...)
	if ls.ParameterShapes != nil {
		out.ParameterShapes = make([][]int, len(ls.ParameterShapes))
		for i, s := range ls.ParameterShapes {
			out.ParameterShapes[i] = append([]int(nil), s...)
		}
	}
	return out
}

// Helper functions for parameter extraction. JSON round trips decode
// numbers as float64, so the integer helper accepts both.
func getIntParam(params map[string]interface{}, key string, defaultValue int) int {
	if val, exists := params[key]; exists {
		if intVal, ok := val.(int); ok {
			return intVal
		}
		if floatVal, ok := val.(float64); ok {
			return int(floatVal)
		}
	}
	return defaultValue
}

func getBoolParam(params map[string]interface{}, key string, defaultValue bool) bool {
	if val, exists := params[key]; exists {
		if boolVal, ok := val.(bool); ok {
			return boolVal
		}
	}
	return defaultValue
}

func getFloatParam(params map[string]interface{}, key string, defaultValue float64) float64 {
	if val, exists := params[key]; exists {
		if floatVal, ok := val.(float64); ok {
			return floatVal
		}
		if floatVal, ok := val.(float32); ok {
			return float64(floatVal)
		}
		if intVal, ok := val.(int); ok {
			return float64(intVal)
		}
	}
	return defaultValue
}

func getStringParam(params map[string]interface{}, key string, defaultValue string) string {
	if val, exists := params[key]; exists {
		if strVal, ok := val.(string); ok {
			return strVal
		}
	}
	return defaultValue
}

// Filters returns the output channel count of a convolution spec.
func (ls LayerSpec) Filters() int {
	return getIntParam(ls.Parameters, "filters", 0)
}

// KernelSize returns the kernel size of a convolution spec.
func (ls LayerSpec) KernelSize() int {
	return getIntParam(ls.Parameters, "kernel_size", 0)
}

// Stride returns the stride of a convolution or pooling spec.
func (ls LayerSpec) Stride() int {
	return getIntParam(ls.Parameters, "stride", 1)
}

// Dilation returns the dilation rate of a convolution spec.
func (ls LayerSpec) Dilation() int {
	return getIntParam(ls.Parameters, "dilation", 1)
}

// Activation returns the fused activation of a convolution spec.
func (ls LayerSpec) Activation() string {
	return getStringParam(ls.Parameters, "activation", ActivationNone)
}

// KernelInitializer returns the kernel initializer name of a spec.
func (ls LayerSpec) KernelInitializer() string {
	return getStringParam(ls.Parameters, "kernel_initializer", InitGlorotUniform)
}

// BiasInitializer returns the bias initializer name of a spec.
func (ls LayerSpec) BiasInitializer() string {
	return getStringParam(ls.Parameters, "bias_initializer", InitZeros)
}

// ScaleFactor returns the constant factor of a Scale spec.
func (ls LayerSpec) ScaleFactor() (float64, error) {
	if _, exists := ls.Parameters["factor"]; !exists {
		return 0, fmt.Errorf("scale layer %s missing factor parameter", ls.Name)
	}
	return getFloatParam(ls.Parameters, "factor", 0), nil
}
