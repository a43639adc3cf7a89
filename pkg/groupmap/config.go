package groupmap

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/prism/pkg/errdefs"
)

// LoadPlannerConfig reads and validates a YAML planner config file.
func LoadPlannerConfig(path string) (*PlannerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read planner config: %w", err)
	}
	return ParsePlannerConfig(data)
}

// ParsePlannerConfig decodes and validates a YAML planner config. Unknown
// fields are rejected.
func ParsePlannerConfig(data []byte) (*PlannerConfig, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg PlannerConfig
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errdefs.Validation("config", "planner config is empty")
		}
		return nil, errdefs.Validation("config", "%v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
