package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/roach88/conformity/internal/compiler"
	"github.com/roach88/conformity/internal/config"
	"github.com/roach88/conformity/internal/rules"
	"github.com/roach88/conformity/internal/store"
)

// services are the long-lived components a command works with.
type services struct {
	store   *store.Store
	configs *config.Store
	rules   *rules.Engine
	logger  *slog.Logger
}

// openServices opens the settings' database and wires the config store
// and rule engine to it.
func openServices(opts *RootOptions, f *OutputFormatter) (*services, error) {
	settings, err := opts.Settings()
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeInvalidArgument, "failed to load settings", err)
	}

	logger := f.Logger()
	st, err := store.Open(settings.DB)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeStore, "failed to open database "+settings.DB, err)
	}
	f.VerboseLog("Opened config store %s", settings.DB)

	eng := rules.New(rules.WithLogger(logger))
	return &services{
		store:   st,
		configs: config.NewStore(st, config.WithHooks(eng), config.WithLogger(logger)),
		rules:   eng,
		logger:  logger,
	}, nil
}

func (s *services) Close() error {
	return s.store.Close()
}

// loadConfigFile compiles a config file. Compile errors are returned as a
// single positioned validation error (exit 1); unreadable files are
// command errors (exit 2).
func loadConfigFile(f *OutputFormatter, path string) (*compiler.Source, error) {
	f.VerboseLog("Compiling %s", path)

	src, err := compiler.LoadFile(path)
	if err == nil {
		return src, nil
	}

	var ce *compiler.CompileError
	switch {
	case errors.As(err, &ce):
		line := 0
		if ce.Pos.IsValid() {
			line = ce.Pos.Line()
		}
		return nil, outputValidationErrors(f, []config.ValidationError{{
			Field:   ce.Field,
			Message: ce.Message,
			Code:    ErrCodeCompileFailed,
			Line:    line,
		}}, nil)
	case errors.Is(err, fs.ErrNotExist):
		return nil, f.Fail(ExitCommandError, ErrCodeNotFound, "config file not found: "+path, err)
	case strings.Contains(err.Error(), "unsupported extension"):
		return nil, f.Fail(ExitCommandError, ErrCodeInvalidArgument, err.Error(), nil)
	default:
		return nil, f.Fail(ExitCommandError, ErrCodeReadFailed, "failed to load config "+path, err)
	}
}

// storeFailure maps a config.Store error to output and an exit code.
func storeFailure(f *OutputFormatter, action string, err error) error {
	var vf *config.ValidationFailedError
	switch {
	case errors.As(err, &vf):
		return outputValidationErrors(f, vf.Errors, nil)
	case errors.Is(err, config.ErrConfigNotFound):
		return f.Fail(ExitCommandError, ErrCodeNotFound, action+": config not found", err)
	case errors.Is(err, config.ErrVersionConflict):
		return f.Fail(ExitFailure, ErrCodeVersionConflict, action+": version conflict", err)
	case errors.Is(err, config.ErrUnknownPreset),
		errors.Is(err, config.ErrUnknownTemplate),
		errors.Is(err, config.ErrDefaultConfig):
		return f.Fail(ExitCommandError, ErrCodeInvalidArgument, fmt.Sprintf("%s: %v", action, err), err)
	default:
		return f.Fail(ExitCommandError, ErrCodeStore, action+" failed", err)
	}
}
