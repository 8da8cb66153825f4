package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-colorize/layers"
	"github.com/tsawler/go-colorize/models"
	"github.com/tsawler/go-colorize/training"
)

func TestTemporalColorizerContract(t *testing.T) {
	model, err := models.TemporalColorizer()
	require.NoError(t, err)
	require.True(t, model.Compiled)

	require.Len(t, model.Inputs, 2)
	assert.Equal(t, "state_input", model.Inputs[0].Name)
	assert.Equal(t, []int{-1, 3, 256, 256}, model.Inputs[0].Shape)
	assert.Equal(t, "grayscale_input", model.Inputs[1].Name)
	assert.Equal(t, []int{-1, 1, 256, 256}, model.Inputs[1].Shape)

	// two chrominance channels at full input resolution
	assert.Equal(t, []int{-1, 2, 256, 256}, model.Output.Shape)

	assert.Equal(t, training.MeanSquaredError, model.Config.Loss)
	assert.Equal(t, training.Adam, model.Config.Optimizer.Type)
	assert.Equal(t, []training.MetricType{training.Accuracy}, model.Config.Metrics)
}

func TestTemporalColorizerOutputRange(t *testing.T) {
	model, err := models.TemporalColorizer()
	require.NoError(t, err)

	// bounded activation (±1) composed with the fixed scale factor 100
	lo, hi, ok := model.OutputBounds()
	require.True(t, ok)
	assert.Equal(t, -100.0, lo)
	assert.Equal(t, 100.0, hi)

	scale, found := model.Stage("scale_ab")
	require.True(t, found)
	factor, err := scale.Spec.ScaleFactor()
	require.NoError(t, err)
	assert.Equal(t, 100.0, factor)
}

func TestTemporalColorizerSkipFusions(t *testing.T) {
	model, err := models.TemporalColorizer()
	require.NoError(t, err)

	fusions := []struct {
		add      string
		shortcut string
		source   string
		shape    []int
	}{
		{"conv8_1_add", "conv8_shortcut", "conv3_3norm", []int{-1, 256, 64, 64}},
		{"conv9_1_add", "conv9_shortcut", "conv2_2norm", []int{-1, 128, 128, 128}},
		{"conv10_1_add", "conv10_shortcut", "conv1_2norm", []int{-1, 128, 256, 256}},
	}

	for _, f := range fusions {
		add, found := model.Stage(f.add)
		require.True(t, found, f.add)
		require.Len(t, add.Spec.InputShapes, 2)
		// fused tensors agree in spatial resolution and channel count
		assert.Equal(t, add.Spec.InputShapes[0], add.Spec.InputShapes[1], f.add)
		assert.Equal(t, f.shape, add.Output.Shape, f.add)

		// the adapter convolution reconciles the encoder channel count and
		// consumes the retained normalized encoder tensor
		adapter, found := model.Stage(f.shortcut)
		require.True(t, found, f.shortcut)
		assert.Equal(t, []string{f.source}, adapter.Inputs)
		assert.Equal(t, layers.InitRandomNormal, adapter.Spec.KernelInitializer())
		assert.Equal(t, layers.InitOnes, adapter.Spec.BiasInitializer())
	}
}

func TestTemporalColorizerEncoderSchedule(t *testing.T) {
	model, err := models.TemporalColorizer()
	require.NoError(t, err)

	// downsampling happens only after blocks 1-3
	for stage, want := range map[string][]int{
		"pool1":   {-1, 64, 128, 128},
		"pool2":   {-1, 128, 64, 64},
		"pool3":   {-1, 256, 32, 32},
		"conv7_3": {-1, 512, 32, 32},
	} {
		st, found := model.Stage(stage)
		require.True(t, found, stage)
		assert.Equal(t, want, st.Output.Shape, stage)
	}

	// dilation 2 in blocks 5-6 only
	for _, name := range []string{"conv5_1", "conv5_2", "conv5_3", "conv6_1", "conv6_2", "conv6_3"} {
		st, found := model.Stage(name)
		require.True(t, found, name)
		assert.Equal(t, 2, st.Spec.Dilation(), name)
	}
	for _, name := range []string{"conv4_1", "conv4_2", "conv4_3", "conv7_1", "conv7_2", "conv7_3"} {
		st, found := model.Stage(name)
		require.True(t, found, name)
		assert.Equal(t, 1, st.Spec.Dilation(), name)
	}
}

func TestTemporalColorizerInputsMeetOnlyAtFusion(t *testing.T) {
	model, err := models.TemporalColorizer()
	require.NoError(t, err)

	stateConv, found := model.Stage("conv1_1_state")
	require.True(t, found)
	assert.Equal(t, []string{"state_input"}, stateConv.Inputs)

	grayConv, found := model.Stage("conv1_1")
	require.True(t, found)
	assert.Equal(t, []string{"grayscale_input"}, grayConv.Inputs)

	fuse, found := model.Stage("conv1_1_add")
	require.True(t, found)
	assert.ElementsMatch(t, []string{"conv1_1_state", "conv1_1"}, fuse.Inputs)

	// the state branch feeds nothing else
	for _, st := range model.Stages {
		for _, in := range st.Inputs {
			if in == "conv1_1_state" {
				assert.Equal(t, "conv1_1_add", st.Spec.Name)
			}
			if in == "state_input" {
				assert.Equal(t, "conv1_1_state", st.Spec.Name)
			}
		}
	}
}

func TestTemporalColorizerRepeatedConstruction(t *testing.T) {
	a, err := models.TemporalColorizer()
	require.NoError(t, err)
	b, err := models.TemporalColorizer()
	require.NoError(t, err)

	// identical topology
	require.Equal(t, len(a.Stages), len(b.Stages))
	for i := range a.Stages {
		assert.Equal(t, a.Stages[i].Spec.Name, b.Stages[i].Spec.Name)
		assert.Equal(t, a.Stages[i].Spec.Type, b.Stages[i].Spec.Type)
		assert.Equal(t, a.Stages[i].Inputs, b.Stages[i].Inputs)
		assert.Equal(t, a.Stages[i].Output.Shape, b.Stages[i].Output.Shape)
	}
	assert.Equal(t, a.TotalParameters, b.TotalParameters)

	// independent learnable-parameter storage
	pa := a.InitializeParameters(nil)
	pb := b.InitializeParameters(nil)
	require.Equal(t, len(pa), len(pb))
	for i := range pa {
		if len(pa[i].Data) > 0 {
			assert.NotSame(t, &pa[i].Data[0], &pb[i].Data[0])
		}
	}
}
