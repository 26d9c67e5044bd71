package compiler

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/conformity/internal/ir"
)

//go:embed schema.cue
var schemaCUE string

// Supported config file extensions.
const (
	ExtCUE  = ".cue"
	ExtJSON = ".json"
)

// CompileError is a config compile error with its source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Source is a compiled config together with the CUE value it came from.
type Source struct {
	Config ir.OrganizationConfig
	Value  cue.Value

	// raw is the value before schema unification; its positions point into
	// the config file only.
	raw cue.Value
}

// Line returns the source line of a field path such as
// "parameters[0].weight", or 0 when the path has no position.
func (s *Source) Line(field string) int {
	if field == "" {
		return 0
	}
	p := cue.ParsePath(field)
	if p.Err() != nil {
		return 0
	}
	v := s.raw.LookupPath(p)
	if !v.Exists() {
		return 0
	}
	return v.Pos().Line()
}

// LoadFile reads and compiles a .cue or .json config file.
func LoadFile(path string) (*Source, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ExtCUE && ext != ExtJSON {
		return nil, fmt.Errorf("load config %s: unsupported extension %q (want %s or %s)", path, ext, ExtCUE, ExtJSON)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return Compile(data, path)
}

// Compile parses CUE (or JSON, which is valid CUE) source, unifies it with
// the #Config schema and decodes the result.
func Compile(data []byte, filename string) (*Source, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileValue(v)
}

// CompileValue unifies an already-built CUE value with the #Config schema.
// The value must be the config struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`name: "Edital", organizationId: "org-1", ...`)
//	src, err := CompileValue(v)
func CompileValue(v cue.Value) (*Source, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	schema := v.Context().CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile embedded schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	data, err := unified.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var cfg ir.OrganizationConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &CompileError{
			Field:   "config",
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}

	return &Source{Config: cfg, Value: unified, raw: v}, nil
}

// userPos prefers a position in the config file over one in the embedded
// schema.
func userPos(positions []token.Pos) token.Pos {
	for _, p := range positions {
		if p.Filename() != "schema.cue" {
			return p
		}
	}
	return positions[0]
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		field := strings.Join(firstErr.Path(), ".")
		if field == "" {
			field = "config"
		}
		return &CompileError{
			Field:   field,
			Message: firstErr.Error(),
			Pos:     userPos(positions),
		}
	}

	return err
}
