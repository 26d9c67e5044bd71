package config

import (
	"maps"
	"slices"
	"strings"
)

// Default parameter ids, one per stage category.
const (
	ParamStructural = "structural"
	ParamLegal      = "legal"
	ParamClarity    = "clarity"
	ParamFormal     = "formal"
)

// Preset names.
const (
	PresetRigorous  = "RIGOROUS"
	PresetStandard  = "STANDARD"
	PresetTechnical = "TECHNICAL"
	PresetFast      = "FAST"
	PresetCustom    = "CUSTOM"
)

var presets = map[string]map[string]float64{
	PresetRigorous:  {ParamStructural: 15, ParamLegal: 60, ParamClarity: 20, ParamFormal: 5},
	PresetStandard:  {ParamStructural: 25, ParamLegal: 25, ParamClarity: 25, ParamFormal: 25},
	PresetTechnical: {ParamStructural: 35, ParamLegal: 25, ParamClarity: 15, ParamFormal: 25},
	PresetFast:      {ParamStructural: 30, ParamLegal: 40, ParamClarity: 20, ParamFormal: 10},
	PresetCustom:    {ParamStructural: 25, ParamLegal: 25, ParamClarity: 25, ParamFormal: 25},
}

// Preset returns a copy of the named preset's weights. Names are matched
// case-insensitively.
func Preset(name string) (map[string]float64, bool) {
	p, ok := presets[strings.ToUpper(name)]
	if !ok {
		return nil, false
	}
	return maps.Clone(p), true
}

// PresetNames returns every preset name, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
