// Package checkpoints persists compiled colorization graphs and their
// parameters, either as JSON checkpoints or as ONNX graph exports.
package checkpoints

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/tsawler/go-colorize/graph"
)

// CheckpointFormat defines the serialization format
type CheckpointFormat int

const (
	FormatJSON CheckpointFormat = iota
	FormatONNX
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatJSON:
		return "JSON"
	case FormatONNX:
		return "ONNX"
	default:
		return "Unknown"
	}
}

// Checkpoint represents a complete model state including the compiled
// graph, its parameters, and training metadata.
type Checkpoint struct {
	Model   *graph.Model      `json:"model"`
	Weights []graph.Parameter `json:"weights,omitempty"`

	TrainingState TrainingState `json:"training_state"`

	Metadata CheckpointMetadata `json:"metadata"`
}

// TrainingState captures the current training progress.
type TrainingState struct {
	Epoch        int     `json:"epoch"`
	Step         int     `json:"step"`
	LearningRate float64 `json:"learning_rate"`
	BestLoss     float64 `json:"best_loss"`
	TotalSteps   int     `json:"total_steps"`
}

// CheckpointMetadata contains checkpoint metadata.
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// Saver handles saving model checkpoints in various formats.
type Saver struct {
	format CheckpointFormat
}

// NewSaver creates a new checkpoint saver for the specified format.
func NewSaver(format CheckpointFormat) *Saver {
	return &Saver{format: format}
}

// Save writes a complete model checkpoint to path.
func (s *Saver) Save(checkpoint *Checkpoint, path string) error {
	if checkpoint.Model == nil || !checkpoint.Model.Compiled {
		return errors.New("checkpoint requires a compiled model")
	}
	switch s.format {
	case FormatJSON:
		return s.saveJSON(checkpoint, path)
	case FormatONNX:
		return ExportONNX(checkpoint.Model, checkpoint.Weights, path)
	default:
		return errors.Errorf("unsupported checkpoint format: %s", s.format)
	}
}

// Load reads a model checkpoint from path. Only the JSON format can be
// loaded back; ONNX is an export-only interchange format here.
func (s *Saver) Load(path string) (*Checkpoint, error) {
	switch s.format {
	case FormatJSON:
		return s.loadJSON(path)
	default:
		return nil, errors.Errorf("unsupported checkpoint load format: %s", s.format)
	}
}

func (s *Saver) saveJSON(checkpoint *Checkpoint, path string) error {
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = "go-colorize"
		checkpoint.Metadata.Version = "1.0.0"
		checkpoint.Metadata.CreatedAt = time.Now()
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating checkpoint file")
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(checkpoint); err != nil {
		return errors.Wrap(err, "encoding checkpoint")
	}
	return nil
}

func (s *Saver) loadJSON(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening checkpoint file")
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, errors.Wrap(err, "decoding checkpoint")
	}
	return &checkpoint, nil
}
