package model

import "fmt"

// JobType covers both the legacy, direction-agnostic taxonomy and the
// canonical import/export taxonomy.
type JobType string

const (
	AirFreight  JobType = "AIR_FREIGHT"
	SeaFreight  JobType = "SEA_FREIGHT"
	RoadFreight JobType = "ROAD_FREIGHT"

	AirFreightImport  JobType = "AIR_FREIGHT_IMPORT"
	AirFreightExport  JobType = "AIR_FREIGHT_EXPORT"
	SeaFreightImport  JobType = "SEA_FREIGHT_IMPORT"
	SeaFreightExport  JobType = "SEA_FREIGHT_EXPORT"
	RoadFreightImport JobType = "ROAD_FREIGHT_IMPORT"
	RoadFreightExport JobType = "ROAD_FREIGHT_EXPORT"
)

var legacyTypes = []JobType{AirFreight, SeaFreight, RoadFreight}

var abbreviations = map[JobType]string{
	AirFreightImport:  "AI",
	AirFreightExport:  "AE",
	SeaFreightImport:  "SI",
	SeaFreightExport:  "SE",
	RoadFreightImport: "RI",
	RoadFreightExport: "RE",
}

// LegacyTypes returns the legacy generation in a stable order.
func LegacyTypes() []JobType {
	out := make([]JobType, len(legacyTypes))
	copy(out, legacyTypes)
	return out
}

// CanonicalTypes returns the canonical generation in a stable order.
func CanonicalTypes() []JobType {
	return []JobType{
		AirFreightImport, AirFreightExport,
		SeaFreightImport, SeaFreightExport,
		RoadFreightImport, RoadFreightExport,
	}
}

func (t JobType) IsLegacy() bool {
	switch t {
	case AirFreight, SeaFreight, RoadFreight:
		return true
	}
	return false
}

func (t JobType) IsCanonical() bool {
	_, ok := abbreviations[t]
	return ok
}

func (t JobType) Valid() bool { return t.IsLegacy() || t.IsCanonical() }

// Abbreviation returns the two-letter job number code of a canonical type.
func (t JobType) Abbreviation() (string, error) {
	abbr, ok := abbreviations[t]
	if !ok {
		return "", fmt.Errorf("%w: job type %q has no job number code", ErrValidation, t)
	}
	return abbr, nil
}

// DefaultCanonical maps a legacy type to its import counterpart. Legacy jobs
// carry no direction, so import is assumed.
func (t JobType) DefaultCanonical() (JobType, error) {
	switch t {
	case AirFreight:
		return AirFreightImport, nil
	case SeaFreight:
		return SeaFreightImport, nil
	case RoadFreight:
		return RoadFreightImport, nil
	}
	return "", fmt.Errorf("%w: %q is not a legacy job type", ErrValidation, t)
}

// ParseJobType accepts only known values.
func ParseJobType(raw string) (JobType, error) {
	t := JobType(raw)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown job type %q", ErrValidation, raw)
	}
	return t, nil
}

func typeForAbbreviation(abbr string) (JobType, bool) {
	for t, a := range abbreviations {
		if a == abbr {
			return t, true
		}
	}
	return "", false
}
