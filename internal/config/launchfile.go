package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LaunchFile is the YAML document an operator can pass to `hangar run` and
// `hangar push` instead of spelling every option out as flags. Flags override
// file values.
type LaunchFile struct {
	URI            string            `yaml:"uri"`
	EntryPoint     string            `yaml:"entry_point"`
	Version        string            `yaml:"version"`
	Parameters     map[string]string `yaml:"parameters"`
	DockerArgs     map[string]string `yaml:"docker_args"`
	ExperimentName string            `yaml:"experiment_name"`
	Resource       string            `yaml:"resource"`
	Entity         string            `yaml:"entity"`
	Project        string            `yaml:"project"`
	DockerImage    string            `yaml:"docker_image"`
	RunnerConfig   map[string]any    `yaml:"runner_config"`
	StorageDir     string            `yaml:"storage_dir"`
}

// LoadLaunchFile parses a launch file from disk.
func LoadLaunchFile(path string) (*LaunchFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read launch file: %w", err)
	}
	var lf LaunchFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parse launch file %q: %w", path, err)
	}
	return &lf, nil
}
