package layers

import "fmt"

// TensorRef is a named tensor with a declared shape, as seen by shape
// inference. Shapes are NCHW with a -1 batch dimension (batch size is not
// fixed at construction time).
type TensorRef struct {
	Name  string `json:"name"`
	Shape []int  `json:"shape"`
}

// InferShapes computes the output shape and parameter metadata for a layer
// given its inputs, and records both on the spec. A shape that cannot be
// produced (wrong rank, mismatched elementwise operands, odd pooling input)
// is a construction-time error, not a deferred training-time one.
func InferShapes(layer *LayerSpec, inputs []TensorRef) error {
	layer.InputShapes = make([][]int, len(inputs))
	for i, in := range inputs {
		layer.InputShapes[i] = append([]int(nil), in.Shape...)
	}

	var err error
	switch layer.Type {
	case Conv2D:
		err = inferConv2D(layer, inputs)
	case Conv2DTranspose:
		err = inferConv2DTranspose(layer, inputs)
	case AvgPool2D:
		err = inferAvgPool2D(layer, inputs)
	case BatchNorm:
		err = inferBatchNorm(layer, inputs)
	case Add:
		err = inferAdd(layer, inputs)
	case ReLU, LeakyReLU, Tanh, Softmax, Scale:
		err = inferElementwise(layer, inputs)
	default:
		err = fmt.Errorf("unsupported layer type: %s", layer.Type.String())
	}
	if err != nil {
		return err
	}

	var total int64
	for _, shape := range layer.ParameterShapes {
		n := int64(1)
		for _, dim := range shape {
			n *= int64(dim)
		}
		total += n
	}
	layer.ParameterCount = total
	return nil
}

func singleInput(layer *LayerSpec, inputs []TensorRef) (TensorRef, error) {
	if len(inputs) != 1 {
		return TensorRef{}, fmt.Errorf("%s layer %s requires exactly 1 input, got %d",
			layer.Type.String(), layer.Name, len(inputs))
	}
	return inputs[0], nil
}

func requireNCHW(layer *LayerSpec, in TensorRef) error {
	if len(in.Shape) != 4 {
		return fmt.Errorf("%s layer %s requires 4D input [batch, channels, height, width], tensor %s has shape %v",
			layer.Type.String(), layer.Name, in.Name, in.Shape)
	}
	return nil
}

func inferConv2D(layer *LayerSpec, inputs []TensorRef) error {
	in, err := singleInput(layer, inputs)
	if err != nil {
		return err
	}
	if err := requireNCHW(layer, in); err != nil {
		return err
	}

	filters := layer.Filters()
	kernel := layer.KernelSize()
	stride := layer.Stride()
	dilation := layer.Dilation()
	if filters <= 0 || kernel <= 0 {
		return fmt.Errorf("conv layer %s needs positive filters and kernel_size", layer.Name)
	}
	if stride <= 0 || dilation <= 0 {
		return fmt.Errorf("conv layer %s needs positive stride and dilation", layer.Name)
	}

	batch := in.Shape[0]
	inChannels := in.Shape[1]
	layer.Parameters["input_channels"] = inChannels

	// Same padding: the effective kernel extent is dilation*(kernel-1)+1.
	pad := dilation * (kernel - 1) / 2
	outH := (in.Shape[2]+2*pad-dilation*(kernel-1)-1)/stride + 1
	outW := (in.Shape[3]+2*pad-dilation*(kernel-1)-1)/stride + 1
	layer.OutputShape = []int{batch, filters, outH, outW}

	layer.ParameterShapes = [][]int{{filters, inChannels, kernel, kernel}}
	if getBoolParam(layer.Parameters, "use_bias", true) {
		layer.ParameterShapes = append(layer.ParameterShapes, []int{filters})
	}
	return nil
}

func inferConv2DTranspose(layer *LayerSpec, inputs []TensorRef) error {
	in, err := singleInput(layer, inputs)
	if err != nil {
		return err
	}
	if err := requireNCHW(layer, in); err != nil {
		return err
	}

	filters := layer.Filters()
	kernel := layer.KernelSize()
	stride := layer.Stride()
	if filters <= 0 || kernel <= 0 {
		return fmt.Errorf("transposed conv layer %s needs positive filters and kernel_size", layer.Name)
	}
	if kernel < stride || (kernel-stride)%2 != 0 {
		return fmt.Errorf("transposed conv layer %s cannot keep same padding with kernel %d and stride %d",
			layer.Name, kernel, stride)
	}

	batch := in.Shape[0]
	inChannels := in.Shape[1]
	layer.Parameters["input_channels"] = inChannels

	// Same padding: output resolution is exactly input * stride.
	pad := (kernel - stride) / 2
	outH := (in.Shape[2]-1)*stride - 2*pad + kernel
	outW := (in.Shape[3]-1)*stride - 2*pad + kernel
	layer.OutputShape = []int{batch, filters, outH, outW}

	layer.ParameterShapes = [][]int{{inChannels, filters, kernel, kernel}}
	if getBoolParam(layer.Parameters, "use_bias", true) {
		layer.ParameterShapes = append(layer.ParameterShapes, []int{filters})
	}
	return nil
}

func inferAvgPool2D(layer *LayerSpec, inputs []TensorRef) error {
	in, err := singleInput(layer, inputs)
	if err != nil {
		return err
	}
	if err := requireNCHW(layer, in); err != nil {
		return err
	}

	pool := getIntParam(layer.Parameters, "pool_size", 2)
	if in.Shape[2]%pool != 0 || in.Shape[3]%pool != 0 {
		return fmt.Errorf("pool layer %s requires spatial dimensions divisible by %d, tensor %s has shape %v",
			layer.Name, pool, in.Name, in.Shape)
	}

	layer.OutputShape = []int{in.Shape[0], in.Shape[1], in.Shape[2] / pool, in.Shape[3] / pool}
	layer.ParameterShapes = nil
	return nil
}

func inferBatchNorm(layer *LayerSpec, inputs []TensorRef) error {
	in, err := singleInput(layer, inputs)
	if err != nil {
		return err
	}
	if err := requireNCHW(layer, in); err != nil {
		return err
	}

	channels := in.Shape[1]
	layer.Parameters["num_features"] = channels
	layer.OutputShape = append([]int(nil), in.Shape...)

	if getBoolParam(layer.Parameters, "affine", true) {
		// gamma (scale) and beta (shift); running statistics are buffers
		// managed by the training engine, not learnable parameters.
		layer.ParameterShapes = [][]int{{channels}, {channels}}
	}
	return nil
}

func inferAdd(layer *LayerSpec, inputs []TensorRef) error {
	if len(inputs) < 2 {
		return fmt.Errorf("add layer %s requires at least 2 inputs, got %d", layer.Name, len(inputs))
	}
	first := inputs[0]
	for _, in := range inputs[1:] {
		if !shapesEqual(first.Shape, in.Shape) {
			return fmt.Errorf("add layer %s: shape mismatch between tensor %s %v and tensor %s %v",
				layer.Name, first.Name, first.Shape, in.Name, in.Shape)
		}
	}
	layer.OutputShape = append([]int(nil), first.Shape...)
	layer.ParameterShapes = nil
	return nil
}

func inferElementwise(layer *LayerSpec, inputs []TensorRef) error {
	in, err := singleInput(layer, inputs)
	if err != nil {
		return err
	}
	if layer.Type == Scale {
		if _, err := layer.ScaleFactor(); err != nil {
			return err
		}
	}
	if layer.Type == Softmax {
		axis := getIntParam(layer.Parameters, "axis", 1)
		if axis < 0 {
			axis += len(in.Shape)
		}
		if axis < 0 || axis >= len(in.Shape) {
			return fmt.Errorf("softmax layer %s: axis %d out of range for shape %v",
				layer.Name, axis, in.Shape)
		}
	}
	layer.OutputShape = append([]int(nil), in.Shape...)
	layer.ParameterShapes = nil
	return nil
}

func shapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
