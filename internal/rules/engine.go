package rules

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/conformity/internal/ir"
)

// DefaultRegexCacheSize bounds the compiled-pattern cache.
const DefaultRegexCacheSize = 1024

// Predicate decides a Custom rule. It returns true when the rule fails
// (a finding should be produced). text is already prepared.
// Predicates must honour ctx cancellation if they can block.
type Predicate func(ctx context.Context, rule ir.Rule, text string) (bool, error)

// Evaluation is the outcome of evaluating a rule set.
type Evaluation struct {
	Findings  []ir.Problem
	Warnings  []string
	Fallbacks int
}

// compiled is a cached compile outcome. Failures are cached too so a bad
// pattern is not recompiled on every analysis.
type compiled struct {
	re  *regexp.Regexp
	err error
}

// Engine evaluates rules. It is safe for concurrent use.
type Engine struct {
	regexes *lru.Cache[string, compiled]
	logger  *slog.Logger

	mu    sync.RWMutex
	hooks map[string]Predicate
}

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	cacheSize int
	logger    *slog.Logger
	hooks     map[string]Predicate
}

// WithRegexCacheSize sets the compiled-pattern cache capacity.
// Non-positive sizes fall back to DefaultRegexCacheSize.
func WithRegexCacheSize(n int) Option {
	return func(c *engineConfig) {
		c.cacheSize = n
	}
}

// WithLogger sets the logger used to report skipped rules.
func WithLogger(l *slog.Logger) Option {
	return func(c *engineConfig) {
		c.logger = l
	}
}

// WithPredicate registers a Custom rule predicate under name.
func WithPredicate(name string, p Predicate) Option {
	return func(c *engineConfig) {
		c.hooks[name] = p
	}
}

// New creates a rule engine.
func New(opts ...Option) *Engine {
	cfg := &engineConfig{
		cacheSize: DefaultRegexCacheSize,
		logger:    slog.Default(),
		hooks:     make(map[string]Predicate),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.cacheSize <= 0 {
		cfg.cacheSize = DefaultRegexCacheSize
	}

	// lru.New only fails for non-positive sizes.
	cache, err := lru.New[string, compiled](cfg.cacheSize)
	if err != nil {
		panic(fmt.Sprintf("rules: regex cache: %v", err))
	}

	return &Engine{
		regexes: cache,
		logger:  cfg.logger,
		hooks:   cfg.hooks,
	}
}

// Register adds or replaces the predicate for a Custom rule hook.
func (e *Engine) Register(name string, p Predicate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks[name] = p
}

// HasPredicate reports whether a predicate is registered under name.
func (e *Engine) HasPredicate(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.hooks[name]
	return ok
}

func (e *Engine) predicate(name string) (Predicate, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.hooks[name]
	return p, ok
}

// Prepare normalizes text for matching: NFC, then lower case.
func Prepare(text string) string {
	return norm.NFC.String(strings.ToLower(text))
}

// Evaluate evaluates one rule against prepared text.
//
// It returns a finding when the rule fails, nil when it passes. A rule that
// cannot be evaluated returns a nil finding plus a *RuleCompilationError or
// *CustomRuleError; callers skip the rule. Context errors are returned as-is.
func (e *Engine) Evaluate(ctx context.Context, rule ir.Rule, text string) (*ir.Problem, error) {
	var failed bool

	switch c := rule.Check.(type) {
	case ir.AllKeywords:
		keywords := prepareKeywords(c.Keywords)
		if len(keywords) == 0 {
			return nil, &RuleCompilationError{RuleID: rule.ID, Err: errors.New("empty keyword list")}
		}
		failed = !containsAll(text, keywords)
	case ir.AnyKeyword:
		keywords := prepareKeywords(c.Keywords)
		if len(keywords) == 0 {
			return nil, &RuleCompilationError{RuleID: rule.ID, Err: errors.New("empty keyword list")}
		}
		failed = !containsAny(text, keywords)
	case ir.Pattern:
		re, err := e.compile(rule.ID, c.Expr)
		if err != nil {
			return nil, err
		}
		failed = !re.MatchString(text)
	case ir.Custom:
		var err error
		failed, err = e.runPredicate(ctx, rule, c.Hook, text)
		if err != nil {
			return nil, err
		}
	case nil:
		return nil, &RuleCompilationError{RuleID: rule.ID, Err: errors.New("rule has no check")}
	default:
		return nil, &RuleCompilationError{RuleID: rule.ID, Err: fmt.Errorf("unsupported check %T", rule.Check)}
	}

	if !failed {
		return nil, nil
	}
	p := finding(rule)
	return &p, nil
}

// EvaluateAll evaluates the enabled rules in priority order, then the
// built-in checks for cls. text must be prepared.
//
// A cancelled ctx stops evaluation between rules; the partial outcome is
// discarded and ctx's error returned.
func (e *Engine) EvaluateAll(ctx context.Context, rules []ir.Rule, text string, cls ir.Classification) (Evaluation, error) {
	return e.evaluate(ctx, append(Order(rules), Builtins(cls)...), text)
}

// EvaluateCategory is EvaluateAll restricted to the rules (configured and
// built-in) whose category runs under stage. Categories without a stage of
// their own belong to ir.CategoryGeneral.
func (e *Engine) EvaluateCategory(ctx context.Context, stage ir.Category, rules []ir.Rule, text string, cls ir.Classification) (Evaluation, error) {
	var selected []ir.Rule
	for _, r := range Order(rules) {
		if r.Category.Stage() == stage {
			selected = append(selected, r)
		}
	}
	for _, r := range Builtins(cls) {
		if r.Category.Stage() == stage {
			selected = append(selected, r)
		}
	}
	return e.evaluate(ctx, selected, text)
}

func (e *Engine) evaluate(ctx context.Context, rules []ir.Rule, text string) (Evaluation, error) {
	var ev Evaluation
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return Evaluation{}, err
		}

		p, err := e.Evaluate(ctx, rule, text)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Evaluation{}, ctxErr
			}
			switch {
			case IsRuleCompilationError(err):
				e.logger.Warn("rule skipped", "rule_id", rule.ID, "err", err)
				ev.Warnings = append(ev.Warnings, err.Error())
			case IsCustomRuleError(err):
				e.logger.Warn("custom rule fell back", "rule_id", rule.ID, "err", err)
				ev.Warnings = append(ev.Warnings, err.Error())
				ev.Fallbacks++
			default:
				return Evaluation{}, fmt.Errorf("evaluate rule %q: %w", rule.ID, err)
			}
			continue
		}
		if p != nil {
			ev.Findings = append(ev.Findings, *p)
		}
	}
	return ev, nil
}

// Order returns the enabled rules sorted by descending priority.
// Ties keep their relative input order.
func Order(rules []ir.Rule) []ir.Rule {
	out := make([]ir.Rule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b ir.Rule) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
	return out
}

// compile returns the cached compiled pattern for (ruleID, expr).
func (e *Engine) compile(ruleID, expr string) (*regexp.Regexp, error) {
	key := ruleID + "\x00" + expr
	c, ok := e.regexes.Get(key)
	if !ok {
		re, err := regexp.Compile("(?i)" + expr)
		c = compiled{re: re, err: err}
		e.regexes.Add(key, c)
	}
	if c.err != nil {
		return nil, &RuleCompilationError{RuleID: ruleID, Pattern: expr, Err: c.err}
	}
	return c.re, nil
}

// CheckPattern reports whether expr compiles as a rule pattern.
func CheckPattern(expr string) error {
	_, err := regexp.Compile("(?i)" + expr)
	return err
}

func (e *Engine) runPredicate(ctx context.Context, rule ir.Rule, hook, text string) (failed bool, err error) {
	p, ok := e.predicate(hook)
	if !ok {
		return false, &CustomRuleError{RuleID: rule.ID, Hook: hook, Err: ErrUnknownHook}
	}

	defer func() {
		if r := recover(); r != nil {
			failed = false
			err = &CustomRuleError{RuleID: rule.ID, Hook: hook, Err: fmt.Errorf("predicate panicked: %v", r)}
		}
	}()

	failed, err = p(ctx, rule, text)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, &CustomRuleError{RuleID: rule.ID, Hook: hook, Err: err}
	}
	return failed, nil
}

func finding(rule ir.Rule) ir.Problem {
	kind := rule.ProblemKind
	if kind == "" {
		kind = ir.DefaultProblemKind
	}
	location := rule.Location
	if location == "" {
		location = ir.DefaultLocation
	}
	description := rule.Description
	if description == "" {
		description = rule.Name
	}
	return ir.Problem{
		Kind:        kind,
		Description: description,
		Severity:    rule.Severity,
		Location:    location,
		Suggestion:  rule.Suggestion,
		Category:    rule.Category,
		RuleID:      rule.ID,
	}
}

// prepareKeywords prepares keywords and drops blank ones; a blank keyword
// would match every text.
func prepareKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if strings.TrimSpace(k) == "" {
			continue
		}
		out = append(out, Prepare(k))
	}
	return out
}

func containsAll(text string, keywords []string) bool {
	for _, k := range keywords {
		if !strings.Contains(text, k) {
			return false
		}
	}
	return true
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
