package native

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/talc/lower"
	"github.com/chazu/talc/model"
	"github.com/chazu/talc/scope"
)

var (
	ErrNotFrozen      = errors.New("class is not frozen")
	ErrDuplicateClass = errors.New("class listed twice")
	ErrEmissionPanic  = errors.New("emission panicked")
	ErrNoLiteralPool  = errors.New("container does not accept a literal pool")
	ErrNoCallSites    = errors.New("container does not accept call sites")
)

// LoweringError aborts the generation of a class side: one of its methods
// failed to lower.
type LoweringError struct {
	Class    string
	Side     model.Side
	Selector string
	Err      error
}

func (e *LoweringError) Error() string {
	return fmt.Sprintf("lowering %s %s>>%s: %v", e.Side, e.Class, e.Selector, e.Err)
}

func (e *LoweringError) Unwrap() error {
	return e.Err
}

// Option configures a Generator.
type Option func(*Generator)

// WithPolicy sets the class generation policy.
func WithPolicy(p Policy) Option {
	return func(g *Generator) { g.policy = p }
}

// WithGlobals sets the global names visible to every method.
func WithGlobals(globals *scope.NameScope) Option {
	return func(g *Generator) { g.globals = globals }
}

// WithDebugInfo enables sequence points on lowered methods.
func WithDebugInfo(enabled bool) Option {
	return func(g *Generator) { g.debugInfo = enabled }
}

// WithLiteralEncoding selects how literals are encoded.
func WithLiteralEncoding(mode lower.LiteralMode) Option {
	return func(g *Generator) { g.literals = mode }
}

// WithCallEncoding selects how message sends are encoded.
func WithCallEncoding(mode lower.CallMode) Option {
	return func(g *Generator) { g.calls = mode }
}

// WithLogger sets the logger.
func WithLogger(log commonlog.Logger) Option {
	return func(g *Generator) { g.log = log }
}

// WithWorkers limits how many classes GenerateAll processes at once.
func WithWorkers(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.workers = n
		}
	}
}

// Generator drives generation passes against a backend.
type Generator struct {
	backend   Backend
	policy    Policy
	globals   *scope.NameScope
	debugInfo bool
	literals  lower.LiteralMode
	calls     lower.CallMode
	log       commonlog.Logger
	workers   int
}

// New creates a generator emitting into backend.
func New(backend Backend, opts ...Option) *Generator {
	g := &Generator{
		backend: backend,
		policy:  GenerateAll,
		log:     commonlog.GetLogger("talc.native"),
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate runs one pass over a side of cls.
//
// Names are assigned first, in method-set order. Every method is then
// lowered before anything is emitted; the first lowering failure aborts the
// pass with a *LoweringError and leaves the container empty. Emission
// failures, including panics, skip only the failing method.
func (g *Generator) Generate(cls *model.Class, side model.Side) (*Report, error) {
	report := &Report{Class: cls.Name(), Side: side, Phase: PhaseStart}
	abort := func(err error) (*Report, error) {
		report.Phase = PhaseAborted
		report.Failure = err.Error()
		g.log.Errorf("%s %s: generation aborted: %s", cls.Name(), side, err)
		return report, err
	}

	if !cls.Frozen() {
		return abort(fmt.Errorf("%s: %w", cls.Name(), ErrNotFrozen))
	}
	if !g.policy.Generate(cls) {
		g.log.Debugf("%s %s: excluded by policy", cls.Name(), side)
		report.Excluded = true
		report.Phase = PhaseDone
		report.Succeeded = true
		return report, nil
	}

	container, err := g.backend.Container(cls, side)
	if err != nil {
		return abort(fmt.Errorf("%s %s: container: %w", cls.Name(), side, err))
	}

	records := cls.Methods(side).Records()
	table := NewNameTable()
	names := make([]string, len(records))
	for i, rec := range records {
		names[i] = table.Assign(SanitizeSelector(rec.Selector), rec)
	}
	report.Phase = PhaseNamesAssigned

	literals := g.literals.NewStrategy()
	calls := g.calls.NewStrategy()
	opts := lower.Options{
		GlobalNameScope: g.globals,
		LiteralEncoding: literals,
		DynamicCall:     calls,
	}
	if g.debugInfo {
		opts.DebugInfo = lower.RecordDebugInfo{}
	}
	compiler := lower.NewMethodCompiler(side, opts)

	lowered := make([]*lower.Method, len(records))
	for i, rec := range records {
		m, err := compiler.LowerMethod(rec, cls)
		if err != nil {
			return abort(&LoweringError{Class: cls.Name(), Side: side, Selector: rec.Selector, Err: err})
		}
		lowered[i] = m
	}
	report.Phase = PhaseAllLowered

	if err := defineTables(container, literals, calls); err != nil {
		return abort(fmt.Errorf("%s %s: %w", cls.Name(), side, err))
	}

	report.Phase = PhaseEmitting
	for i, m := range lowered {
		if err := emit(container, names[i], m); err != nil {
			g.log.Warningf("%s %s: skipping %s (%s): %s", cls.Name(), side, m.Selector, names[i], err)
			report.Skipped = append(report.Skipped, SkippedMethod{
				Selector: m.Selector,
				Name:     names[i],
				Reason:   err.Error(),
			})
			continue
		}
		report.Emitted = append(report.Emitted, EmittedMethod{Name: names[i], Selector: m.Selector})
	}

	report.Phase = PhaseDone
	report.Succeeded = true
	g.log.Infof("%s", report)
	return report, nil
}

// defineTables hands the class side's literal pool and call-site table to
// the container.
func defineTables(c Container, literals lower.LiteralEncodingStrategy, calls lower.DynamicCallStrategy) error {
	if pool, ok := literals.(*lower.LiteralPool); ok {
		d, ok := c.(LiteralDefiner)
		if !ok {
			return ErrNoLiteralPool
		}
		if err := d.DefineLiterals(pool.Values()); err != nil {
			return fmt.Errorf("literal pool: %w", err)
		}
	}
	if sites, ok := calls.(*lower.CallSitePool); ok {
		d, ok := c.(CallSiteDefiner)
		if !ok {
			return ErrNoCallSites
		}
		if err := d.DefineCallSites(sites.Selectors()); err != nil {
			return fmt.Errorf("call sites: %w", err)
		}
	}
	return nil
}

func emit(c Container, name string, m *lower.Method) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrEmissionPanic, r)
		}
	}()
	b, err := c.DefineMethod(name)
	if err != nil {
		return err
	}
	return c.Materialize(b, m)
}

// GenerateClass runs the instance-side and class-side passes of cls
// concurrently. Reports are indexed by side; the error joins the failures
// of both passes.
func (g *Generator) GenerateClass(cls *model.Class) ([2]*Report, error) {
	var reports [2]*Report
	var errs [2]error

	eg := new(errgroup.Group)
	for _, side := range model.Sides {
		eg.Go(func() error {
			reports[side], errs[side] = g.Generate(cls, side)
			return nil
		})
	}
	_ = eg.Wait()
	return reports, errors.Join(errs[0], errs[1])
}

// GenerateAll generates distinct classes concurrently, at most the
// configured number of workers at a time. All classes must be frozen before
// any pass starts. Cancelling ctx stops classes that have not started yet.
func (g *Generator) GenerateAll(ctx context.Context, classes []*model.Class) ([][2]*Report, error) {
	seen := make(map[*model.Class]bool, len(classes))
	for _, cls := range classes {
		if !cls.Frozen() {
			return nil, fmt.Errorf("%s: %w", cls.Name(), ErrNotFrozen)
		}
		if seen[cls] {
			return nil, fmt.Errorf("%s: %w", cls.Name(), ErrDuplicateClass)
		}
		seen[cls] = true
	}

	results := make([][2]*Report, len(classes))
	errs := make([]error, len(classes))

	eg := new(errgroup.Group)
	eg.SetLimit(g.workers)
	for i, cls := range classes {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			results[i], errs[i] = g.GenerateClass(cls)
			return nil
		})
	}
	_ = eg.Wait()
	return results, errors.Join(errs...)
}
