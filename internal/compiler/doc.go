// Package compiler turns organization config files into
// ir.OrganizationConfig values.
//
// Config files are CUE or JSON. Both are compiled with the CUE SDK and
// unified with the embedded #Config schema (schema.cue), which closes the
// struct, constrains weights and severities and fills defaults such as
// enabled: true. Schema violations are reported as *CompileError with the
// file position of the offending value.
//
// The compiler does not apply the business validation of package config;
// callers run config.Validate on the result and may use Source.Line to
// attach line numbers to its errors.
package compiler
