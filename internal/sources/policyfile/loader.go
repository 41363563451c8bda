package policyfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader handles loading and parsing of the policies.yaml seed file
type Loader struct {
	filePath string
}

// NewLoader creates a new policy file loader
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads and parses the policies.yaml file
func (l *Loader) Load() (*PoliciesConfig, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read policies file: %w", err)
	}

	var config PoliciesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse policies yaml: %w", err)
	}

	return &config, nil
}
