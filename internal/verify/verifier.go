// Package verify checks class contracts by bounded symbolic execution. Every sequence
// of public calls up to a maximum length is encoded into one solver script, and the
// first sequence that can violate an invariant, a postcondition, the precondition of
// an internal call or an implicit runtime assumption is reported.
package verify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lhaig/boundcheck/internal/model"
	"github.com/lhaig/boundcheck/internal/smt"
)

// Config bounds the exploration
type Config struct {
	// MaxDepth is the longest sequence of public calls checked
	MaxDepth int
	// MaxCallDepth is how deeply internal calls are inlined
	MaxCallDepth int
	// MaxLoopUnroll is how many iterations of a loop are explored
	MaxLoopUnroll int
	// MaxReferenceDepth is how deeply unknown reference arguments are materialized
	MaxReferenceDepth int
}

// DefaultConfig returns the bounds used when nothing is configured
func DefaultConfig() Config {
	return Config{
		MaxDepth:          3,
		MaxCallDepth:      4,
		MaxLoopUnroll:     4,
		MaxReferenceDepth: 2,
	}
}

// ErrUnknown is recorded when the solver cannot decide a check
var ErrUnknown = errors.New("solver returned unknown")

// Verifier runs the bounded check for one class at a time. It holds no per-class
// state and may be shared between goroutines if its backend may.
type Verifier struct {
	backend smt.Backend
	cfg     Config
	logger  *zap.Logger
}

// New returns a verifier that solves through backend
func New(backend smt.Backend, cfg Config, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{backend: backend, cfg: cfg, logger: logger}
}

// Config returns the bounds in use
func (v *Verifier) Config() Config { return v.cfg }

// Verify checks class and returns the outcome. Ineligible classes are Skipped without
// touching the solver.
func (v *Verifier) Verify(ctx context.Context, class *model.ClassModel) *Result {
	start := time.Now()
	result := &Result{ClassName: class.Name, State: NotStarted}
	logger := v.logger.With(zap.String("class", class.Name))

	if !class.IsEligible() {
		result.State = Skipped
		logger.Debug("skipping class with unsupported elements",
			zap.Int("unsupported", len(class.Unsupported.All())))
		return result
	}

	ctx, span := tracer.Start(ctx, "verify.Verify",
		trace.WithAttributes(attribute.String("class", class.Name)))
	defer span.End()

	result.State = Running
	methods := class.PublicMethods()

	for depth := 0; depth <= v.cfg.MaxDepth && result.State == Running; depth++ {
		walkSequences(methods, depth, func(seq []*model.Method) bool {
			if ctx.Err() != nil {
				return false
			}
			result.Sequences++
			violations, bounded, err := v.checkSequence(ctx, class, seq)
			for _, note := range bounded {
				if !slices.Contains(result.Bounded, note) {
					result.Bounded = append(result.Bounded, note)
				}
			}
			recordSequence(ctx, err != nil)
			if err != nil {
				if ctx.Err() != nil {
					return false
				}
				logger.Warn("sequence failed",
					zap.String("sequence", sequenceName(seq)),
					zap.Error(err))
				result.Exceptions = append(result.Exceptions,
					fmt.Sprintf("%s: %v", sequenceName(seq), err))
				return true
			}
			if len(violations) > 0 {
				result.Violations = violations
				result.State = ViolationFound
				return false
			}
			return true
		})
		if ctx.Err() != nil {
			result.Exceptions = append(result.Exceptions, fmt.Sprintf("cancelled: %v", ctx.Err()))
			break
		}
	}

	if result.State == Running {
		result.State = Safe
	}
	result.Duration = since(start)

	span.SetAttributes(
		attribute.String("state", result.State.String()),
		attribute.Int("sequences", result.Sequences),
		attribute.Int("violations", len(result.Violations)),
		attribute.Int("bounded", len(result.Bounded)),
	)
	if result.HasExceptions() {
		span.SetStatus(codes.Error, result.Exceptions[0])
	}
	recordResult(ctx, result)

	logger.Info("verified class",
		zap.Stringer("state", result.State),
		zap.Int("sequences", result.Sequences),
		zap.Int("violations", len(result.Violations)),
		zap.Int("exceptions", len(result.Exceptions)),
		zap.Strings("bounded", result.Bounded),
		zap.Duration("duration", result.Duration))
	return result
}

// checkSequence encodes seq into one script and maps satisfiable checks to violations.
// It also returns the sites where a bound excluded executions of seq.
func (v *Verifier) checkSequence(ctx context.Context, class *model.ClassModel, seq []*model.Method) (violations []model.Violation, bounded []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("encoding failed: %v", r)
		}
	}()

	session := smt.NewSession()
	x := newExecutor(v.cfg, class, session)
	if err := x.run(seq); err != nil {
		return nil, nil, fmt.Errorf("encoding failed: %w", err)
	}

	results, err := session.Solve(ctx, v.backend)
	if err != nil {
		return nil, x.bounded, err
	}

	violations, unknown := x.violations(results)
	if len(violations) == 0 && unknown > 0 {
		return nil, x.bounded, fmt.Errorf("%w for %d checks", ErrUnknown, unknown)
	}
	return violations, x.bounded, nil
}

// Sequences returns every ordered sequence of depth calls drawn from methods,
// depth-first by prefix in declaration order
func Sequences(methods []*model.Method, depth int) [][]*model.Method {
	var out [][]*model.Method
	walkSequences(methods, depth, func(seq []*model.Method) bool {
		out = append(out, append([]*model.Method(nil), seq...))
		return true
	})
	return out
}

// walkSequences calls visit for each sequence until visit returns false
func walkSequences(methods []*model.Method, depth int, visit func([]*model.Method) bool) {
	seq := make([]*model.Method, 0, depth)
	var walk func() bool
	walk = func() bool {
		if len(seq) == depth {
			return visit(seq)
		}
		for _, m := range methods {
			seq = append(seq, m)
			ok := walk()
			seq = seq[:len(seq)-1]
			if !ok {
				return false
			}
		}
		return true
	}
	walk()
}

func sequenceName(seq []*model.Method) string {
	if len(seq) == 0 {
		return "<initial state>"
	}
	names := make([]string, len(seq))
	for i, m := range seq {
		names[i] = m.Name
	}
	return strings.Join(names, " -> ")
}
