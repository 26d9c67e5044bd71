package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/conformity/internal/ir"
)

func TestStageCursor_ReleasesInPipelineOrder(t *testing.T) {
	c := newStageCursor()

	assert.Empty(t, c.Complete(ir.CategoryFormal))
	assert.Empty(t, c.Complete(ir.CategoryGeneral), "general never emits a step")
	assert.Empty(t, c.Complete(ir.CategoryLegal))

	assert.Equal(t,
		[]ir.Category{ir.CategoryStructural, ir.CategoryLegal},
		c.Complete(ir.CategoryStructural))

	assert.Equal(t,
		[]ir.Category{ir.CategoryClarity, ir.CategoryFormal},
		c.Complete(ir.CategoryClarity))
}

func TestStepProgress_IsMonotonic(t *testing.T) {
	steps := []string{
		ir.StepQueued,
		ir.StepResolveConfig,
		string(ir.CategoryStructural),
		string(ir.CategoryLegal),
		string(ir.CategoryClarity),
		string(ir.CategoryFormal),
		ir.StepAggregate,
		ir.StepDedupe,
		ir.StepComplete,
	}

	prev := -1
	for _, s := range steps {
		pct, ok := stepProgress[s]
		assert.True(t, ok, s)
		assert.Greater(t, pct, prev, s)
		prev = pct
	}
	assert.Equal(t, 100, prev)
}
