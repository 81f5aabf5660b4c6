package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/models"
)

// Seed is the document used to populate the memory queue and directory
type Seed struct {
	Submissions []models.Submission `json:"submissions"`
	Candidates  []models.Candidate  `json:"candidates"`
}

// LoadSeed reads a JSON or YAML seed file, chosen by extension. An empty path yields an empty seed.
func LoadSeed(path string) (*Seed, error) {
	seed := &Seed{}
	if path == "" {
		return seed, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read seed file %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err = yamlToJSON(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse seed file %s", path)
		}
	}

	if err := json.Unmarshal(raw, seed); err != nil {
		return nil, errors.Wrapf(err, "failed to parse seed file %s", path)
	}
	return seed, nil
}

// yamlToJSON lets YAML seeds share the models' json field names
func yamlToJSON(raw []byte) ([]byte, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// Queue builds a memory queue holding the seeded submissions
func (s *Seed) Queue() *MemoryQueue {
	return NewMemoryQueue(s.Submissions...)
}

// Directory builds a memory directory holding the seeded candidates
func (s *Seed) Directory() *MemoryDirectory {
	return NewMemoryDirectory(s.Candidates...)
}
