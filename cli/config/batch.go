package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/velocitylabs/vcollect/types"
)

// batchFile is the on-disk shape of a batch descriptor. Durations are
// strings ("30s"), hence the DTO instead of unmarshaling types.Batch
// directly.
type batchFile struct {
	Name              string   `yaml:"name"`
	Description       string   `yaml:"description"`
	Jobs              []string `yaml:"jobs"`
	StopOnFailure     bool     `yaml:"stop_on_failure"`
	InterJobPause     Duration `yaml:"inter_job_pause"`
	MaxConcurrentJobs int      `yaml:"max_concurrent_jobs"`
}

// LoadBatch reads a batch descriptor YAML file.
func LoadBatch(path string) (*types.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read batch file %q: %w", path, err)
	}

	expanded := ExpandEnv(string(data))

	var bf batchFile
	if err := yaml.Unmarshal([]byte(expanded), &bf); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	batch := &types.Batch{
		Name:              bf.Name,
		Description:       bf.Description,
		Jobs:              bf.Jobs,
		StopOnFailure:     bf.StopOnFailure,
		InterJobPause:     bf.InterJobPause.Duration,
		MaxConcurrentJobs: bf.MaxConcurrentJobs,
	}
	if batch.Name == "" {
		// Fall back to the file stem so ad-hoc files need no name field.
		batch.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := batch.Validate(); err != nil {
		return nil, fmt.Errorf("batch file %s: %w", path, err)
	}
	return batch, nil
}

// FindBatch resolves a batch by name: a literal path wins, otherwise
// <batchDir>/<name>.yaml and .yml are tried.
func FindBatch(batchDir, name string) (*types.Batch, error) {
	if _, err := os.Stat(name); err == nil {
		return LoadBatch(name)
	}
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(batchDir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return LoadBatch(path)
		}
	}
	return nil, fmt.Errorf("batch %q not found under %s", name, batchDir)
}

// ListBatches returns the names of all batch files under dir, sorted.
func ListBatches(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot list batch dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ext))
	}
	sort.Strings(names)
	return names, nil
}
