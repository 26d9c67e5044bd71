package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conformity/internal/config"
)

func ptr[T any](v T) *T { return &v }

func TestApplyOverrides(t *testing.T) {
	cfg := config.DefaultConfig("org-1")

	out, err := applyOverrides(cfg, map[string]Override{
		config.ParamLegal:  {Weight: ptr(70.0)},
		config.ParamFormal: {Enabled: ptr(false), Value: "x"},
	})
	require.NoError(t, err)

	legal, _ := out.Parameter(config.ParamLegal)
	assert.Equal(t, 70.0, legal.Weight)

	formal, _ := out.Parameter(config.ParamFormal)
	assert.False(t, formal.Enabled)
	assert.Equal(t, "x", formal.Value)

	orig, _ := cfg.Parameter(config.ParamLegal)
	assert.Equal(t, 25.0, orig.Weight, "input is not mutated")
}

func TestApplyOverrides_ReportsEveryBadOverride(t *testing.T) {
	cfg := config.DefaultConfig("org-1")

	_, err := applyOverrides(cfg, map[string]Override{
		"unknown":         {Weight: ptr(10.0)},
		config.ParamLegal: {Weight: ptr(120.0)},
	})
	require.Error(t, err)

	var vf *config.ValidationFailedError
	require.ErrorAs(t, err, &vf)
	require.Len(t, vf.Errors, 2)
	assert.Equal(t, config.ErrWeightRange, vf.Errors[0].Code)
	assert.Equal(t, "overrides[legal].weight", vf.Errors[0].Field)
	assert.Equal(t, config.ErrParameterID, vf.Errors[1].Code)
	assert.Equal(t, "overrides[unknown]", vf.Errors[1].Field)
}
