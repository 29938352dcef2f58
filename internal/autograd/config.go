package autograd

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/ember-ml/ember/internal/tensor"
)

// Config controls backward execution.
type Config struct {
	// NumWorkers is the number of goroutines applying graph nodes. Zero or
	// negative selects a single worker.
	NumWorkers int `yaml:"num_workers"`

	// MinGraphSize is the node count below which a pass runs single-threaded;
	// small graphs are not worth the scheduling overhead.
	MinGraphSize int `yaml:"min_graph_size"`

	// Deterministic forces a single worker so ready nodes unwind in strict
	// descending creation order.
	Deterministic bool `yaml:"deterministic"`
}

// DefaultConfig sizes the worker pool to the machine.
func DefaultConfig() Config {
	return Config{
		NumWorkers:   runtime.NumCPU(),
		MinGraphSize: 64,
	}
}

// LoadConfig reads a Config from a YAML file, filling unset fields with
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("%w: reading engine config: %v", tensor.ErrInvalidArgument, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parsing engine config: %v", tensor.ErrInvalidArgument, err)
	}
	return cfg, nil
}
