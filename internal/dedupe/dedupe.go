// Package dedupe removes duplicate problems from a result.
package dedupe

import "github.com/roach88/conformity/internal/ir"

type key struct {
	kind        string
	description string
}

// Dedupe returns problems without duplicates, keyed by (Kind, Description).
// The first occurrence wins and order is preserved. The input is not
// modified.
func Dedupe(problems []ir.Problem) []ir.Problem {
	seen := make(map[key]struct{}, len(problems))
	out := make([]ir.Problem, 0, len(problems))
	for _, p := range problems {
		k := key{kind: p.Kind, description: p.Description}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}
