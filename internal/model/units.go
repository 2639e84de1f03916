package model

import (
	"fmt"
	"strings"
)

// Unit is a length-unit tag as used by the geometry kernel.
type Unit string

const (
	UnitMeter      Unit = "kUnitType_Meter"
	UnitCentiMeter Unit = "kUnitType_CentiMeter"
	UnitFeet       Unit = "kUnitType_Feet"
	UnitInch       Unit = "kUnitType_Inch"
)

// DefaultUnit is assumed when a unit is absent or unrecognized.
const DefaultUnit = UnitCentiMeter

// unitScales maps each unit to millimeters per unit.
var unitScales = map[Unit]float64{
	UnitMeter:      1000.0,
	UnitCentiMeter: 10.0,
	UnitFeet:       304.8,
	UnitInch:       25.4,
}

// AllUnits returns the supported units.
func AllUnits() []Unit {
	return []Unit{UnitMeter, UnitCentiMeter, UnitFeet, UnitInch}
}

// IsValid returns true if the unit is recognized.
func (u Unit) IsValid() bool {
	_, ok := unitScales[u]
	return ok
}

// String returns the unit tag.
func (u Unit) String() string {
	return string(u)
}

// ShortName returns the unit name without the kUnitType_ prefix.
func (u Unit) ShortName() string {
	return strings.TrimPrefix(string(u), "kUnitType_")
}

// MillimetersPerUnit returns the scale of the unit.
// Unrecognized units use the scale of DefaultUnit.
func (u Unit) MillimetersPerUnit() float64 {
	if s, ok := unitScales[u]; ok {
		return s
	}
	return unitScales[DefaultUnit]
}

// MillimetersPerUnit returns the scale for a unit tag, 10.0 when the tag is
// empty or unrecognized.
func MillimetersPerUnit(tag string) float64 {
	return Unit(tag).MillimetersPerUnit()
}

// ParseUnit parses a unit tag or its short name (Meter, CentiMeter, Feet,
// Inch), case-insensitively. An empty string yields DefaultUnit.
func ParseUnit(s string) (Unit, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultUnit, nil
	}
	for _, u := range AllUnits() {
		if strings.EqualFold(s, string(u)) || strings.EqualFold(s, u.ShortName()) {
			return u, nil
		}
	}
	return "", fmt.Errorf("unknown unit %q (valid: Meter, CentiMeter, Feet, Inch)", s)
}
