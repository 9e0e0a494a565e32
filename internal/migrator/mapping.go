package migrator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/example/aal-logistics/api-go/internal/model"
)

// Mapping assigns a canonical type to every legacy type.
type Mapping map[model.JobType]model.JobType

// DefaultMapping sends every legacy type to its import counterpart.
func DefaultMapping() Mapping {
	m := Mapping{}
	for _, legacy := range model.LegacyTypes() {
		canonical, _ := legacy.DefaultCanonical()
		m[legacy] = canonical
	}
	return m
}

// Validate requires a canonical target for every legacy type and nothing else.
func (m Mapping) Validate() error {
	for from, to := range m {
		if !from.IsLegacy() {
			return fmt.Errorf("%w: mapping source %q is not a legacy job type", model.ErrValidation, from)
		}
		if !to.IsCanonical() {
			return fmt.Errorf("%w: mapping target %q for %s is not a canonical job type", model.ErrValidation, to, from)
		}
	}
	for _, legacy := range model.LegacyTypes() {
		if _, ok := m[legacy]; !ok {
			return fmt.Errorf("%w: no mapping for legacy job type %s", model.ErrValidation, legacy)
		}
	}
	return nil
}

type mappingFile struct {
	Mapping map[string]string `yaml:"mapping"`
}

// LoadMapping reads a YAML file of the form
//
//	mapping:
//	  AIR_FREIGHT: AIR_FREIGHT_EXPORT
//
// Legacy types the file leaves out keep their default target.
func LoadMapping(path string) (Mapping, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping file: %w", err)
	}
	return ParseMapping(raw)
}

func ParseMapping(raw []byte) (Mapping, error) {
	var f mappingFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: parse mapping: %v", model.ErrValidation, err)
	}
	m := DefaultMapping()
	for from, to := range f.Mapping {
		m[model.JobType(from)] = model.JobType(to)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
