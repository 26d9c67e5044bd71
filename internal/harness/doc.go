// Package harness runs conformity scenarios end to end.
//
// A scenario names a config (a CUE or JSON file, a preset, or the built-in
// default), a list of documents to analyze and the outcomes expected for
// them. Each scenario runs against a fresh in-memory store and an
// orchestrator with a manual clock and sequential analysis ids, so two
// runs of the same scenario produce byte-identical snapshots.
//
// # Scenario Format
//
//	name: edital_missing_object
//	description: "An edital without an object loses a critical legal point"
//	organization: prefeitura-exemplo
//	config: configs/rigorous.cue   # relative to the scenario file
//	preset: RIGOROUS               # applied on top of config or the default
//	analyses:
//	  - name: without-object
//	    text: "Edital de pregão. ..."
//	    classification:
//	      document_type: edital
//	    overrides:
//	      legal: { weight: 60 }
//	    expect:
//	      state: Completed
//	      overall_score: 93.75
//	      category_scores: { legal: 75 }
//	      problems: [builtin.edital.object]
//	assertions:
//	  - type: problem_present
//	    analysis: without-object
//	    rule: builtin.edital.object
//
// # Assertion Types
//
//   - problem_present: the analysis reported a problem from rule
//   - problem_absent: the analysis reported no problem from rule
//   - score_at_least: the overall (or category) score is >= value
//   - score_at_most: the overall (or category) score is <= value
//   - steps: the analysis visited exactly steps, in order
//   - cache_hit: the analysis was served from the content cache
//
// # Golden Files
//
// RunWithGolden compares the canonical JSON snapshot of a run against
// testdata/golden/<scenario>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
