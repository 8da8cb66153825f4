package checkpoints

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tsawler/go-colorize/graph"
	"github.com/tsawler/go-colorize/layers"
)

// ONNX wire schema, hand-encoded with protobuf wire primitives. Field
// numbers follow onnx.proto (IR version 7, opset 13).
const (
	onnxIRVersion   = 7
	onnxOpsetVersion = 13

	// ModelProto
	fieldModelIRVersion       = 1
	fieldModelProducerName    = 2
	fieldModelProducerVersion = 3
	fieldModelVersion         = 5
	fieldModelGraph           = 7
	fieldModelOpsetImport     = 8

	// OperatorSetIdProto
	fieldOpsetVersion = 2

	// GraphProto
	fieldGraphNode        = 1
	fieldGraphName        = 2
	fieldGraphInitializer = 5
	fieldGraphInput       = 11
	fieldGraphOutput      = 12

	// NodeProto
	fieldNodeInput     = 1
	fieldNodeOutput    = 2
	fieldNodeName      = 3
	fieldNodeOpType    = 4
	fieldNodeAttribute = 5

	// AttributeProto
	fieldAttrName  = 1
	fieldAttrFloat = 2
	fieldAttrInt   = 3
	fieldAttrInts  = 8
	fieldAttrType  = 20

	attrTypeFloat = 1
	attrTypeInt   = 2
	attrTypeInts  = 7

	// TensorProto
	fieldTensorDims     = 1
	fieldTensorDataType = 2
	fieldTensorName     = 8
	fieldTensorRawData  = 9

	// ValueInfoProto / TypeProto / TensorShapeProto
	fieldValueInfoName   = 1
	fieldValueInfoType   = 2
	fieldTypeTensorType  = 1
	fieldTensorElemType  = 1
	fieldTensorShape     = 2
	fieldShapeDim        = 1
	fieldDimValue        = 1
	fieldDimParam        = 2

	onnxDataTypeFloat = 1
)

// ExportONNX writes the compiled graph, and the given parameters as
// initializers, as an ONNX model file. Passing nil weights exports the
// architecture alone (scale constants are still embedded, they are part of
// the topology, not learnable state).
func ExportONNX(m *graph.Model, weights []graph.Parameter, path string) error {
	if m == nil || !m.Compiled {
		return errors.New("ONNX export requires a compiled model")
	}

	graphBytes, err := encodeGraph(m, weights)
	if err != nil {
		return errors.Wrapf(err, "exporting model %s", m.Name)
	}

	var model []byte
	model = appendVarintField(model, fieldModelIRVersion, onnxIRVersion)
	model = appendStringField(model, fieldModelProducerName, "go-colorize")
	model = appendStringField(model, fieldModelProducerVersion, "1.0.0")
	model = appendVarintField(model, fieldModelVersion, 1)
	model = appendBytesField(model, fieldModelGraph, graphBytes)

	var opset []byte
	opset = appendVarintField(opset, fieldOpsetVersion, onnxOpsetVersion)
	model = appendBytesField(model, fieldModelOpsetImport, opset)

	if err := os.WriteFile(path, model, 0644); err != nil {
		return errors.Wrap(err, "writing ONNX file")
	}
	return nil
}

func encodeGraph(m *graph.Model, weights []graph.Parameter) ([]byte, error) {
	var g []byte
	g = appendStringField(g, fieldGraphName, m.Name)

	for _, in := range m.Inputs {
		g = appendBytesField(g, fieldGraphInput, encodeValueInfo(in))
	}
	g = appendBytesField(g, fieldGraphOutput, encodeValueInfo(m.Output))

	hasWeights := len(weights) > 0
	for _, st := range m.Stages {
		nodes, inits, err := encodeStage(st, hasWeights)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			g = appendBytesField(g, fieldGraphNode, n)
		}
		for _, init := range inits {
			g = appendBytesField(g, fieldGraphInitializer, init)
		}
	}

	for _, w := range weights {
		g = appendBytesField(g, fieldGraphInitializer, encodeTensor(w.Name, w.Shape, w.Data))
	}
	return g, nil
}

// encodeStage maps one stage to its ONNX node(s) and any constant
// initializers it owns. A convolution with a fused activation becomes two
// nodes; the intermediate tensor gets a derived name.
func encodeStage(st graph.Stage, hasWeights bool) (nodes [][]byte, inits [][]byte, err error) {
	spec := st.Spec
	name := spec.Name

	switch spec.Type {
	case layers.Conv2D, layers.Conv2DTranspose:
		opType := "Conv"
		pad := spec.Dilation() * (spec.KernelSize() - 1) / 2
		if spec.Type == layers.Conv2DTranspose {
			opType = "ConvTranspose"
			pad = (spec.KernelSize() - spec.Stride()) / 2
		}
		inputs := []string{st.Inputs[0], name + ".weight"}
		if len(spec.ParameterShapes) > 1 {
			inputs = append(inputs, name+".bias")
		}
		convOut := name
		if spec.Activation() != layers.ActivationNone {
			convOut = name + "_conv"
		}
		node := encodeNode(name, opType, inputs, []string{convOut},
			attrInts("kernel_shape", spec.KernelSize(), spec.KernelSize()),
			attrInts("strides", spec.Stride(), spec.Stride()),
			attrInts("dilations", spec.Dilation(), spec.Dilation()),
			attrInts("pads", pad, pad, pad, pad),
		)
		nodes = append(nodes, node)
		switch spec.Activation() {
		case layers.ActivationReLU:
			nodes = append(nodes, encodeNode(name+"_relu", "Relu", []string{convOut}, []string{name}))
		case layers.ActivationTanh:
			nodes = append(nodes, encodeNode(name+"_tanh", "Tanh", []string{convOut}, []string{name}))
		}

	case layers.AvgPool2D:
		nodes = append(nodes, encodeNode(name, "AveragePool", []string{st.Inputs[0]}, []string{name},
			attrInts("kernel_shape", 2, 2),
			attrInts("strides", 2, 2),
		))

	case layers.BatchNorm:
		inputs := []string{st.Inputs[0], name + ".gamma", name + ".beta", name + ".running_mean", name + ".running_var"}
		nodes = append(nodes, encodeNode(name, "BatchNormalization", inputs, []string{name},
			attrFloat("epsilon", getEpsilon(spec)),
		))
		if hasWeights {
			// running statistics are buffers, not parameters; export the
			// standard mean=0 var=1 initialization
			channels := spec.OutputShape[1]
			inits = append(inits,
				encodeTensor(name+".running_mean", []int{channels}, make([]float32, channels)),
				encodeTensor(name+".running_var", []int{channels}, onesSlice(channels)),
			)
		}

	case layers.ReLU:
		nodes = append(nodes, encodeNode(name, "Relu", []string{st.Inputs[0]}, []string{name}))

	case layers.LeakyReLU:
		var slope float64
		if v, ok := spec.Parameters["negative_slope"].(float64); ok {
			slope = v
		}
		nodes = append(nodes, encodeNode(name, "LeakyRelu", []string{st.Inputs[0]}, []string{name},
			attrFloat("alpha", slope)))

	case layers.Tanh:
		nodes = append(nodes, encodeNode(name, "Tanh", []string{st.Inputs[0]}, []string{name}))

	case layers.Softmax:
		axis := int64(1)
		if v, ok := spec.Parameters["axis"].(int); ok {
			axis = int64(v)
		} else if v, ok := spec.Parameters["axis"].(float64); ok {
			axis = int64(v)
		}
		nodes = append(nodes, encodeNode(name, "Softmax", []string{st.Inputs[0]}, []string{name},
			attrInt("axis", axis)))

	case layers.Add:
		nodes = append(nodes, encodeNode(name, "Add", st.Inputs, []string{name}))

	case layers.Scale:
		factor, ferr := spec.ScaleFactor()
		if ferr != nil {
			return nil, nil, ferr
		}
		constName := name + ".factor"
		nodes = append(nodes, encodeNode(name, "Mul", []string{st.Inputs[0], constName}, []string{name}))
		inits = append(inits, encodeTensor(constName, nil, []float32{float32(factor)}))

	default:
		return nil, nil, errors.Errorf("unsupported layer type for ONNX export: %s", spec.Type)
	}
	return nodes, inits, nil
}

func getEpsilon(spec layers.LayerSpec) float64 {
	if v, ok := spec.Parameters["eps"].(float64); ok {
		return v
	}
	return 1e-3
}

func onesSlice(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = 1
	}
	return s
}

func encodeNode(name, opType string, inputs, outputs []string, attrs ...[]byte) []byte {
	var n []byte
	for _, in := range inputs {
		n = appendStringField(n, fieldNodeInput, in)
	}
	for _, out := range outputs {
		n = appendStringField(n, fieldNodeOutput, out)
	}
	n = appendStringField(n, fieldNodeName, name)
	n = appendStringField(n, fieldNodeOpType, opType)
	for _, a := range attrs {
		n = appendBytesField(n, fieldNodeAttribute, a)
	}
	return n
}

func attrInts(name string, vals ...int) []byte {
	var a []byte
	a = appendStringField(a, fieldAttrName, name)
	for _, v := range vals {
		a = appendVarintField(a, fieldAttrInts, uint64(v))
	}
	a = appendVarintField(a, fieldAttrType, attrTypeInts)
	return a
}

func attrInt(name string, v int64) []byte {
	var a []byte
	a = appendStringField(a, fieldAttrName, name)
	a = appendVarintField(a, fieldAttrInt, uint64(v))
	a = appendVarintField(a, fieldAttrType, attrTypeInt)
	return a
}

func attrFloat(name string, v float64) []byte {
	var a []byte
	a = appendStringField(a, fieldAttrName, name)
	a = protowire.AppendTag(a, fieldAttrFloat, protowire.Fixed32Type)
	a = protowire.AppendFixed32(a, math.Float32bits(float32(v)))
	a = appendVarintField(a, fieldAttrType, attrTypeFloat)
	return a
}

// encodeValueInfo emits a float tensor value descriptor. The -1 batch
// dimension becomes the symbolic dim_param "N".
func encodeValueInfo(t graph.Tensor) []byte {
	var shape []byte
	for _, d := range t.Shape {
		var dim []byte
		if d < 0 {
			dim = appendStringField(dim, fieldDimParam, "N")
		} else {
			dim = appendVarintField(dim, fieldDimValue, uint64(d))
		}
		shape = appendBytesField(shape, fieldShapeDim, dim)
	}

	var tensorType []byte
	tensorType = appendVarintField(tensorType, fieldTensorElemType, onnxDataTypeFloat)
	tensorType = appendBytesField(tensorType, fieldTensorShape, shape)

	var typ []byte
	typ = appendBytesField(typ, fieldTypeTensorType, tensorType)

	var vi []byte
	vi = appendStringField(vi, fieldValueInfoName, t.Name)
	vi = appendBytesField(vi, fieldValueInfoType, typ)
	return vi
}

func encodeTensor(name string, dims []int, data []float32) []byte {
	var t []byte
	for _, d := range dims {
		t = appendVarintField(t, fieldTensorDims, uint64(d))
	}
	t = appendVarintField(t, fieldTensorDataType, onnxDataTypeFloat)
	t = appendStringField(t, fieldTensorName, name)

	raw := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	t = appendBytesField(t, fieldTensorRawData, raw)
	return t
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendStringField(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytesField(b []byte, num protowire.Number, sub []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, sub)
}
