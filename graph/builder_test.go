package graph_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-colorize/graph"
	"github.com/tsawler/go-colorize/layers"
	"github.com/tsawler/go-colorize/training"
)

func simpleConfig() training.Config {
	return training.Config{
		Loss:      training.MeanSquaredError,
		Optimizer: training.DefaultAdam(),
		Metrics:   []training.MetricType{training.Accuracy},
	}
}

func TestBuilderWiresSequentialStages(t *testing.T) {
	b := graph.NewBuilder("test")
	in := b.Input("luminance", []int{1, 64, 64})
	x := b.Layer(layers.NewConv2D(8, 3, "conv1", layers.WithActivation(layers.ActivationReLU)), in)
	x = b.Layer(layers.NewAvgPool2D("pool1"), x)

	model, err := b.Compile(x, simpleConfig())
	require.NoError(t, err)

	assert.Equal(t, []int{-1, 8, 32, 32}, model.Output.Shape)
	assert.Len(t, model.Stages, 2)
	assert.Equal(t, int64(8*1*3*3+8), model.TotalParameters)
	assert.True(t, model.Compiled)
}

func TestBuilderLatchesFirstError(t *testing.T) {
	b := graph.NewBuilder("test")
	in := b.Input("luminance", []int{1, 64, 64})
	a := b.Layer(layers.NewConv2D(8, 3, "conv1"), in)
	c := b.Layer(layers.NewConv2D(16, 3, "conv2"), a)
	// channel mismatch at the fusion point
	bad := b.Layer(layers.NewAdd("fuse"), a, c)
	assert.Empty(t, bad.Name)

	// later calls are no-ops once a construction error is latched
	after := b.Layer(layers.NewReLU("relu"), a)
	assert.Empty(t, after.Name)

	_, err := b.Compile(a, simpleConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conv1")
	assert.Contains(t, err.Error(), "conv2")
}

func TestBuilderRejectsForeignTensor(t *testing.T) {
	b := graph.NewBuilder("test")
	b.Input("luminance", []int{1, 64, 64})

	other := graph.NewBuilder("other")
	foreign := other.Input("foreign", []int{1, 64, 64})

	b.Layer(layers.NewReLU("relu"), foreign)
	require.Error(t, b.Err())
	assert.Contains(t, b.Err().Error(), "foreign")
}

func TestBuilderRejectsDuplicateNames(t *testing.T) {
	b := graph.NewBuilder("test")
	in := b.Input("luminance", []int{1, 64, 64})
	b.Layer(layers.NewConv2D(8, 3, "conv1"), in)
	b.Layer(layers.NewConv2D(8, 3, "conv1"), in)
	require.Error(t, b.Err())
}

func TestCompileIsOneShot(t *testing.T) {
	b := graph.NewBuilder("test")
	in := b.Input("luminance", []int{1, 64, 64})
	x := b.Layer(layers.NewConv2D(8, 3, "conv1"), in)

	_, err := b.Compile(x, simpleConfig())
	require.NoError(t, err)

	_, err = b.Compile(x, simpleConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already compiled")
}

func TestCompileRejectsOrphanStage(t *testing.T) {
	b := graph.NewBuilder("test")
	in := b.Input("luminance", []int{1, 64, 64})
	x := b.Layer(layers.NewConv2D(8, 3, "conv1"), in)
	b.Layer(layers.NewConv2D(8, 3, "dangling"), in)

	_, err := b.Compile(x, simpleConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dangling")
}

func TestCompileRejectsUnconsumedInput(t *testing.T) {
	b := graph.NewBuilder("test")
	in := b.Input("luminance", []int{1, 64, 64})
	b.Input("unused", []int{3, 64, 64})
	x := b.Layer(layers.NewConv2D(8, 3, "conv1"), in)

	_, err := b.Compile(x, simpleConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unused")
}

func TestCompileValidatesTrainingConfig(t *testing.T) {
	b := graph.NewBuilder("test")
	in := b.Input("luminance", []int{1, 64, 64})
	x := b.Layer(layers.NewConv2D(8, 3, "conv1"), in)

	cfg := simpleConfig()
	cfg.Optimizer.LearningRate = -1
	_, err := b.Compile(x, cfg)
	require.Error(t, err)
}

func TestOutputBounds(t *testing.T) {
	b := graph.NewBuilder("test")
	in := b.Input("luminance", []int{1, 64, 64})
	x := b.Layer(layers.NewConv2D(2, 1, "head", layers.WithActivation(layers.ActivationTanh)), in)
	x = b.Layer(layers.NewScale(100, "scale"), x)

	model, err := b.Compile(x, simpleConfig())
	require.NoError(t, err)

	lo, hi, ok := model.OutputBounds()
	require.True(t, ok)
	assert.Equal(t, -100.0, lo)
	assert.Equal(t, 100.0, hi)
}

func TestOutputBoundsUnboundedHead(t *testing.T) {
	b := graph.NewBuilder("test")
	in := b.Input("luminance", []int{1, 64, 64})
	x := b.Layer(layers.NewConv2D(2, 1, "head"), in)

	model, err := b.Compile(x, simpleConfig())
	require.NoError(t, err)

	_, _, ok := model.OutputBounds()
	assert.False(t, ok)
}

func TestModelSummaryAndDOT(t *testing.T) {
	b := graph.NewBuilder("test")
	in := b.Input("luminance", []int{1, 64, 64})
	x := b.Layer(layers.NewConv2D(8, 3, "conv1"), in)

	model, err := b.Compile(x, simpleConfig())
	require.NoError(t, err)

	summary := model.Summary()
	assert.Contains(t, summary, "conv1")
	assert.Contains(t, summary, "MeanSquaredError")

	var buf bytes.Buffer
	require.NoError(t, model.DOT(&buf))
	assert.True(t, strings.Contains(buf.String(), "digraph"))
	assert.Contains(t, buf.String(), "conv1")
}
