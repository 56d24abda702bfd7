package expr

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/sirupsen/logrus"

	dderrors "github.com/arkilian/drilldown/internal/errors"
)

// DefaultCacheSize is the number of compiled programs an Evaluator keeps.
const DefaultCacheSize = 1024

// Evaluator compiles and runs expressions. Compiled programs are cached by
// source text in a bounded cache. An Evaluator is safe for concurrent use.
type Evaluator struct {
	log        logrus.FieldLogger
	namespaces map[string]*namespace
	cacheSize  int64

	// nil when the cache could not be created; every call then compiles
	cache *ristretto.Cache
}

// compiled is a cache entry. warned is set once the entry's failure has
// been logged at warn level.
type compiled struct {
	prog   *Program
	err    error
	warned atomic.Bool
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger used for evaluation failures.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Evaluator) { e.log = log }
}

// WithClock sets the clock behind Date.now.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.namespaces = newNamespaces(now) }
}

// WithCacheSize sets how many compiled programs are kept.
func WithCacheSize(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.cacheSize = int64(n)
		}
	}
}

// NewEvaluator returns an Evaluator with the standard namespaces.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		log:        logrus.StandardLogger(),
		namespaces: newNamespaces(time.Now),
		cacheSize:  DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithField("component", "expr")

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        e.cacheSize * 10,
		MaxCost:            e.cacheSize,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		e.log.WithError(err).Warn("program cache disabled")
	} else {
		e.cache = cache
	}
	return e
}

// Close releases the program cache.
func (e *Evaluator) Close() error {
	if e.cache != nil {
		e.cache.Close()
	}
	return nil
}

// Compile returns the cached program for source, compiling it on first use.
// Parse failures are cached as well.
func (e *Evaluator) Compile(source string) (*Program, error) {
	c := e.compile(source)
	return c.prog, c.err
}

func (e *Evaluator) compile(source string) *compiled {
	if e.cache != nil {
		if v, ok := e.cache.Get(source); ok {
			return v.(*compiled)
		}
	}

	c := &compiled{}
	c.prog, c.err = Compile(source)
	if c.err != nil {
		c.err = dderrors.NewExpressionError(dderrors.CodeParseFailed, "invalid expression", c.err)
	} else {
		c.prog.entry = c
	}
	if e.cache != nil && e.cache.Set(source, c, 1) {
		// make the entry visible to the next lookup
		e.cache.Wait()
	}
	return c
}

// Evaluate runs source against env. On any failure it returns ErrorValue
// together with the cause; it never panics.
func (e *Evaluator) Evaluate(source string, env Env) (Value, error) {
	c := e.compile(source)
	if c.err != nil {
		e.report(source, c, c.err)
		return ErrorValue, c.err
	}
	return e.Run(c.prog, env)
}

// Run evaluates a compiled program against env with the same failure policy
// as Evaluate.
func (e *Evaluator) Run(prog *Program, env Env) (v Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = ErrorValue
			err = dderrors.NewExpressionError(dderrors.CodeEvalFailed, "evaluation panicked", fmt.Errorf("%v", r))
			e.report(prog.source, prog.entry, err)
		}
	}()

	in := &interpreter{env: env, namespaces: e.namespaces}
	v, err = in.eval(prog.root)
	if err != nil {
		err = dderrors.NewExpressionError(dderrors.CodeEvalFailed, "evaluation failed", err)
		e.report(prog.source, prog.entry, err)
		return ErrorValue, err
	}
	switch v.(type) {
	case *builtinFunc, *namespace:
		err = dderrors.NewExpressionError(dderrors.CodeEvalFailed, "evaluation failed",
			fmt.Errorf("expression yields a %s, not a value", typeName(v)))
		e.report(prog.source, prog.entry, err)
		return ErrorValue, err
	}
	return v, nil
}

// report logs the first failure of each compiled expression at warn level
// and the rest at debug level, so a bad column over many rows logs once.
func (e *Evaluator) report(source string, c *compiled, err error) {
	entry := e.log.WithFields(logrus.Fields{"expression": source, "error": err.Error()})
	if c != nil && c.warned.Swap(true) {
		entry.Debug("expression evaluation failed")
		return
	}
	entry.Warn("expression evaluation failed")
}
