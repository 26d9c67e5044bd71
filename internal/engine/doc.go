// Package engine implements the analysis orchestrator.
//
// The orchestrator accepts analysis requests, runs at most maxConcurrent of
// them at a time and keeps the rest in a bounded FIFO queue. Each analysis
// moves through a fixed state machine:
//
//	Pending -> Processing -> {Completed | Failed | Cancelled}
//
// Processing runs a fixed pipeline:
//
//	resolve-config -> structural -> legal -> clarity -> formal
//	               -> aggregate -> dedupe -> complete
//
// Category rules run on per-analysis workers (errgroup with SetLimit).
// Workers may finish in any order; the stage cursor emits category steps
// in the fixed order above so progress is monotonic and deterministic.
// The general category runs alongside them and emits no step.
//
// SHARED STATE:
//
// The content cache (text fingerprint + config fingerprint + classification
// -> result) and the rule engine's regex cache are the only state shared
// across analyses. A content cache entry is written in the same critical
// section as the Completed transition, and Cancel takes the same lock, so
// a cancelled or timed-out analysis never writes a partial result.
//
// Resolved configs are deep-copied per analysis; config updates only affect
// analyses submitted afterwards.
package engine
