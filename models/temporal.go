// Package models builds the colorization computation graphs. Each builder
// is a pure function of no arguments returning a fully wired, compiled
// graph; invoking a builder twice yields structurally identical graphs
// with independent parameter storage.
package models

import (
	"github.com/tsawler/go-colorize/graph"
	"github.com/tsawler/go-colorize/layers"
	"github.com/tsawler/go-colorize/training"
)

// ChrominanceScale maps the bounded (-1, 1) output head into the a*b*
// chrominance range.
const ChrominanceScale = 100

// TemporalColorizer builds the graph that predicts chrominance for a video
// frame conditioned on the colorized previous frame. It takes two inputs,
// state_input (256x256x3, the previous frame's predicted color state) and
// grayscale_input (256x256x1, the current frame's luminance), and produces
// a 256x256x2 chrominance prediction bounded to [-100, 100].
//
// Based on Real-Time User-Guided Image Colorization with Learned Deep
// Priors (R. Zhang et al).
func TemporalColorizer() (*graph.Model, error) {
	b := graph.NewBuilder("temporal_colorizer")

	stateInput := b.Input("state_input", []int{3, 256, 256})
	grayInput := b.Input("grayscale_input", []int{1, 256, 256})

	// 3x3 same-padding convolution with a fused rectifier, the default
	// block used throughout the encoder and decoder.
	conv := func(x graph.Tensor, filters int, name string, opts ...layers.ConvOption) graph.Tensor {
		opts = append(opts, layers.WithActivation(layers.ActivationReLU))
		return b.Layer(layers.NewConv2D(filters, 3, name, opts...), x)
	}
	dilated := layers.WithDilation(2)

	// Shortcut adapters and the decoder transposes use near-zero-mean
	// kernels with unit biases.
	custom := layers.WithInitializer(layers.InitRandomNormal, layers.InitOnes)

	// conv1: the only point where the two inputs interact before the
	// decoder. Each input gets its own convolution, the results are summed
	// and rectified.
	state := b.Layer(layers.NewConv2D(64, 3, "conv1_1_state"), stateInput)
	x := b.Layer(layers.NewConv2D(64, 3, "conv1_1"), grayInput)
	x = b.Layer(layers.NewAdd("conv1_1_add"), state, x)
	x = b.Layer(layers.NewReLU("conv1_1_relu"), x)
	x = conv(x, 64, "conv1_2")
	// The normalized tensor feeds only the decoder shortcut; the main path
	// pools the raw convolution output.
	conv12norm := b.Layer(layers.NewBatchNorm("conv1_2norm"), x)
	x = b.Layer(layers.NewAvgPool2D("pool1"), x)

	// conv2
	x = conv(x, 128, "conv2_1")
	x = conv(x, 128, "conv2_2")
	conv22norm := b.Layer(layers.NewBatchNorm("conv2_2norm"), x)
	x = b.Layer(layers.NewAvgPool2D("pool2"), x)

	// conv3
	x = conv(x, 256, "conv3_1")
	x = conv(x, 256, "conv3_2")
	x = conv(x, 256, "conv3_3")
	conv33norm := b.Layer(layers.NewBatchNorm("conv3_3norm"), x)
	x = b.Layer(layers.NewAvgPool2D("pool3"), x)

	// conv4: no further downsampling from here on
	x = conv(x, 512, "conv4_1")
	x = conv(x, 512, "conv4_2")
	x = conv(x, 512, "conv4_3")
	x = b.Layer(layers.NewBatchNorm("conv4_3norm"), x)

	// conv5, conv6: dilation 2 widens the receptive field at constant
	// resolution
	x = conv(x, 512, "conv5_1", dilated)
	x = conv(x, 512, "conv5_2", dilated)
	x = conv(x, 512, "conv5_3", dilated)
	x = b.Layer(layers.NewBatchNorm("conv5_3norm"), x)

	x = conv(x, 512, "conv6_1", dilated)
	x = conv(x, 512, "conv6_2", dilated)
	x = conv(x, 512, "conv6_3", dilated)
	x = b.Layer(layers.NewBatchNorm("conv6_3norm"), x)

	// conv7
	x = conv(x, 512, "conv7_1")
	x = conv(x, 512, "conv7_2")
	x = conv(x, 512, "conv7_3")
	x = b.Layer(layers.NewBatchNorm("conv7_3norm"), x)

	// conv8: upsample and fuse with the conv3 shortcut. The shortcut
	// convolution adapts the encoder channels before the elementwise add.
	x = b.Layer(layers.NewConv2DTranspose(256, 4, "conv8_1", layers.WithStride(2)), x)
	shortcut := b.Layer(layers.NewConv2D(256, 3, "conv8_shortcut", custom), conv33norm)
	x = b.Layer(layers.NewAdd("conv8_1_add"), x, shortcut)
	x = b.Layer(layers.NewReLU("conv8_1_relu"), x)
	x = conv(x, 256, "conv8_2")
	x = conv(x, 256, "conv8_3")
	x = b.Layer(layers.NewBatchNorm("conv8_3norm"), x)

	// conv9: fuse with the conv2 shortcut
	x = b.Layer(layers.NewConv2DTranspose(128, 4, "conv9_1", layers.WithStride(2), custom), x)
	shortcut = b.Layer(layers.NewConv2D(128, 3, "conv9_shortcut", custom), conv22norm)
	x = b.Layer(layers.NewAdd("conv9_1_add"), x, shortcut)
	x = b.Layer(layers.NewReLU("conv9_1_relu"), x)
	x = conv(x, 128, "conv9_2", custom)
	x = conv(x, 128, "conv9_3")
	x = b.Layer(layers.NewBatchNorm("conv9_3norm"), x)

	// conv10: fuse with the conv1 shortcut; no normalization on the final
	// block
	x = b.Layer(layers.NewConv2DTranspose(128, 4, "conv10_1", layers.WithStride(2), custom), x)
	shortcut = b.Layer(layers.NewConv2D(128, 3, "conv10_shortcut", custom), conv12norm)
	x = b.Layer(layers.NewAdd("conv10_1_add"), x, shortcut)
	x = b.Layer(layers.NewReLU("conv10_1_relu"), x)
	x = b.Layer(layers.NewConv2D(128, 3, "conv10_2", custom), x)
	x = b.Layer(layers.NewLeakyReLU(0.2, "conv10_2relu"), x)

	// Output head: bounded 1x1 projection to two chrominance channels,
	// scaled into [-100, 100].
	x = b.Layer(layers.NewConv2D(2, 1, "conv10_ab", layers.WithActivation(layers.ActivationTanh)), x)
	x = b.Layer(layers.NewScale(ChrominanceScale, "scale_ab"), x)

	// TODO Another loss function might be more appropriate. Accuracy is
	// kept as a metric for parity with prior behavior even though it is
	// not meaningful for a regression target.
	return b.Compile(x, training.Config{
		Loss:      training.MeanSquaredError,
		Optimizer: training.DefaultAdam(),
		Metrics:   []training.MetricType{training.Accuracy},
	})
}
