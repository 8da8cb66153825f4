package training

import "fmt"

// LossType identifies the loss function bound to a compiled graph.
type LossType int

const (
	MeanSquaredError LossType = iota
	CategoricalCrossEntropy
)

func (lt LossType) String() string {
	switch lt {
	case MeanSquaredError:
		return "MeanSquaredError"
	case CategoricalCrossEntropy:
		return "CategoricalCrossEntropy"
	default:
		return "Unknown"
	}
}

// OptimizerType identifies the optimizer bound to a compiled graph.
type OptimizerType int

const (
	Adam OptimizerType = iota
	SGD
)

func (ot OptimizerType) String() string {
	switch ot {
	case Adam:
		return "Adam"
	case SGD:
		return "SGD"
	default:
		return "Unknown"
	}
}

// MetricType identifies an evaluation metric bound to a compiled graph.
type MetricType int

const (
	Accuracy MetricType = iota
)

func (mt MetricType) String() string {
	switch mt {
	case Accuracy:
		return "Accuracy"
	default:
		return "Unknown"
	}
}

// OptimizerConfig holds optimizer hyperparameters. The execution engine
// consumes this configuration; no update math lives here.
type OptimizerConfig struct {
	Type         OptimizerType `json:"type"`
	LearningRate float64       `json:"learning_rate"`
	Beta1        float64       `json:"beta1"`
	Beta2        float64       `json:"beta2"`
	Epsilon      float64       `json:"epsilon"`
	Momentum     float64       `json:"momentum"`
	WeightDecay  float64       `json:"weight_decay"`
}

// DefaultAdam returns the adaptive moment optimizer with its standard
// hyperparameters.
func DefaultAdam() OptimizerConfig {
	return OptimizerConfig{
		Type:         Adam,
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
	}
}

// Validate checks optimizer hyperparameters.
func (oc OptimizerConfig) Validate() error {
	if oc.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %g", oc.LearningRate)
	}
	if oc.Type == Adam {
		if oc.Beta1 < 0 || oc.Beta1 >= 1 {
			return fmt.Errorf("beta1 must be in [0, 1), got %g", oc.Beta1)
		}
		if oc.Beta2 < 0 || oc.Beta2 >= 1 {
			return fmt.Errorf("beta2 must be in [0, 1), got %g", oc.Beta2)
		}
		if oc.Epsilon <= 0 {
			return fmt.Errorf("epsilon must be positive, got %g", oc.Epsilon)
		}
	}
	if oc.WeightDecay < 0 {
		return fmt.Errorf("weight decay cannot be negative, got %g", oc.WeightDecay)
	}
	return nil
}

// Config is the training configuration bound to a graph at compilation:
// a loss function, an optimizer, and a list of evaluation metrics.
type Config struct {
	Loss      LossType        `json:"loss"`
	Optimizer OptimizerConfig `json:"optimizer"`
	Metrics   []MetricType    `json:"metrics,omitempty"`
}

// Validate checks the full training configuration.
func (c Config) Validate() error {
	if c.Loss.String() == "Unknown" {
		return fmt.Errorf("unknown loss type %d", int(c.Loss))
	}
	if err := c.Optimizer.Validate(); err != nil {
		return fmt.Errorf("invalid optimizer config: %v", err)
	}
	for _, m := range c.Metrics {
		if m.String() == "Unknown" {
			return fmt.Errorf("unknown metric type %d", int(m))
		}
	}
	return nil
}
