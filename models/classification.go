package models

import (
	"fmt"

	"github.com/tsawler/go-colorize/graph"
	"github.com/tsawler/go-colorize/layers"
	"github.com/tsawler/go-colorize/training"
)

// ColorBins is the fixed count of quantized a*b* chrominance clusters used
// to reframe color prediction as classification.
const ColorBins = 313

// SoftmaxTemperature is a fixed multiplicative rescale applied before the
// softmax, controlling its sharpness.
const SoftmaxTemperature = 2.606

// ClassificationColorizer builds the single-image graph that infers a*b*
// chrominance from luminance via a distribution over quantized color bins.
// Input is 224x224x1 luminance; output is a reduced-resolution 2-channel
// chrominance estimate.
func ClassificationColorizer() (*graph.Model, error) {
	b := graph.NewBuilder("classification_colorizer")

	x := b.Input("grayscale_input", []int{1, 224, 224})

	// conv1 through conv8: rectified 3x3 convolution blocks, each followed
	// by batch normalization. Downsampling happens inside a block with a
	// stride-2 convolution, not with pooling.
	x = convBlock(b, x, 1, 64, []convParams{{}, {stride: 2}})
	x = convBlock(b, x, 2, 128, []convParams{{}, {stride: 2}})
	x = convBlock(b, x, 3, 256, []convParams{{}, {}, {stride: 2}})
	x = convBlock(b, x, 4, 512, []convParams{{}, {}, {}})
	x = convBlock(b, x, 5, 512, []convParams{{dilation: 2}, {dilation: 2}, {dilation: 2}})
	x = convBlock(b, x, 6, 512, []convParams{{dilation: 2}, {dilation: 2}, {dilation: 2}})
	x = convBlock(b, x, 7, 512, []convParams{{}, {}, {}})
	x = convBlock(b, x, 8, 256, []convParams{{kernel: 4, stride: 2}, {}, {}})

	// Probability distribution over color bins at every spatial location.
	x = b.Layer(layers.NewConv2D(ColorBins, 1, "conv_bins"), x)
	x = b.Layer(layers.NewScale(SoftmaxTemperature, "softmax_scale"), x)
	x = b.Layer(layers.NewSoftmax(1, "softmax"), x)

	// Decoding
	// TODO Implement class rebalancing, implement annealed-mean interpolation
	x = b.Layer(layers.NewConv2D(2, 1, "decode_ab"), x) // FIXME Placeholder, should be an annealed-mean interpolation

	// TODO Implement loss function (cross entropy with soft-encoded ground truth)
	return b.Compile(x, training.Config{
		Loss:      training.MeanSquaredError,
		Optimizer: training.DefaultAdam(),
		Metrics:   []training.MetricType{training.Accuracy},
	})
}

// convParams are the per-convolution deviations from the block default
// (3x3 kernel, stride 1, dilation 1).
type convParams struct {
	kernel   int
	stride   int
	dilation int
}

// convBlock appends a series of rectified convolutions at a fixed channel
// width followed by batch normalization, returning the normalized tensor.
func convBlock(b *graph.Builder, x graph.Tensor, block, filters int, convs []convParams) graph.Tensor {
	for i, p := range convs {
		kernel := 3
		if p.kernel != 0 {
			kernel = p.kernel
		}
		opts := []layers.ConvOption{layers.WithActivation(layers.ActivationReLU)}
		if p.stride != 0 {
			opts = append(opts, layers.WithStride(p.stride))
		}
		if p.dilation != 0 {
			opts = append(opts, layers.WithDilation(p.dilation))
		}
		name := fmt.Sprintf("conv%d_%d", block, i+1)
		x = b.Layer(layers.NewConv2D(filters, kernel, name, opts...), x)
	}
	return b.Layer(layers.NewBatchNorm(fmt.Sprintf("conv%dnorm", block)), x)
}
