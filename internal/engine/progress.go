package engine

import "github.com/roach88/conformity/internal/ir"

// Progress percentage reached when a step is entered.
var stepProgress = map[string]int{
	ir.StepQueued:                 0,
	ir.StepResolveConfig:          5,
	string(ir.CategoryStructural): 20,
	string(ir.CategoryLegal):      35,
	string(ir.CategoryClarity):    50,
	string(ir.CategoryFormal):     65,
	ir.StepAggregate:              80,
	ir.StepDedupe:                 90,
	ir.StepComplete:               100,
}

// stageCursor releases category steps in ir.StageCategories order no matter
// which order the category workers finish in.
//
// Not safe for concurrent use; guarded by Orchestrator.mu.
type stageCursor struct {
	done map[ir.Category]bool
	next int
}

func newStageCursor() *stageCursor {
	return &stageCursor{done: make(map[ir.Category]bool)}
}

// Complete marks stage finished and returns the stages that can now be
// reported, in order. Stages without a step of their own (general) are
// accepted and never reported.
func (c *stageCursor) Complete(stage ir.Category) []ir.Category {
	c.done[stage] = true

	var ready []ir.Category
	for c.next < len(ir.StageCategories) && c.done[ir.StageCategories[c.next]] {
		ready = append(ready, ir.StageCategories[c.next])
		c.next++
	}
	return ready
}
