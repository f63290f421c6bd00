package brandmatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultThreshold is the minimum score used when none is configured.
	DefaultThreshold = 80.0
	// DefaultGroupLimit caps each strategy family in grouped output.
	DefaultGroupLimit = 5
)

// preparation guards the one-time build of a strategy context. A build that
// fails because its context was cancelled is retried by the next caller.
type preparation struct {
	mu   sync.Mutex
	done bool
	sc   StrategyContext
	err  error
}

// Engine runs a fixed set of strategies against one corpus and fuses their
// results. It is safe for concurrent use; strategy contexts are built at most
// once.
type Engine struct {
	corpus     *Corpus
	strategies []Strategy
	prepared   []*preparation
	logger     *log.Logger
	sourceErr  error
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used for warnings.
func WithLogger(logger *log.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithSourceError records why the corpus is empty, so queries report it.
func WithSourceError(err error) EngineOption {
	return func(e *Engine) { e.sourceErr = err }
}

// NewEngine binds strategies to corpus. A nil corpus is treated as empty.
func NewEngine(corpus *Corpus, strategies []Strategy, opts ...EngineOption) *Engine {
	if corpus == nil {
		corpus = NewCorpus(nil)
	}
	e := &Engine{
		corpus:     corpus,
		strategies: append([]Strategy(nil), strategies...),
		prepared:   make([]*preparation, len(strategies)),
	}
	for i := range e.prepared {
		e.prepared[i] = &preparation{}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Corpus returns the corpus the engine was built for.
func (e *Engine) Corpus() *Corpus {
	return e.corpus
}

// StrategyNames lists the configured strategies in invocation order.
func (e *Engine) StrategyNames() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name()
	}
	return names
}

// Prepare builds every strategy context concurrently. Failures are joined and
// returned, but they never stop the other strategies from preparing; the
// failing strategies simply contribute nothing to later queries.
func (e *Engine) Prepare(ctx context.Context) error {
	errs := make([]error, len(e.strategies))
	var g errgroup.Group
	for i := range e.strategies {
		g.Go(func() error {
			_, errs[i] = e.prepare(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (e *Engine) prepare(ctx context.Context, i int) (sc StrategyContext, err error) {
	p := e.prepared[i]
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return p.sc, p.err
	}
	s := e.strategies[i]
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: prepare panic: %v", ErrStrategyExecution, r)
			}
		}()
		sc, err = s.Prepare(ctx, e.corpus)
	}()
	if err != nil {
		err = &StrategyError{Strategy: s.Name(), Err: err}
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil, err
		}
		e.logf("prepare %s failed: %v", s.Name(), err)
	} else {
		e.logf("prepared %s for %d terms", s.Name(), e.corpus.Len())
	}
	p.done = true
	p.sc, p.err = sc, err
	return sc, err
}

// Search runs a single strategy and returns its scores ordered best first.
// A strategy whose model is unavailable yields no scores and no error.
func (e *Engine) Search(ctx context.Context, name, query string) ([]Scored, error) {
	for i, s := range e.strategies {
		if s.Name() != name {
			continue
		}
		scored, err := e.run(ctx, i, query)
		if errors.Is(err, ErrModelUnavailable) {
			e.logf("search %s skipped: %v", name, err)
			return []Scored{}, nil
		}
		if err != nil {
			return nil, err
		}
		sortScored(scored)
		return scored, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
}

func (e *Engine) run(ctx context.Context, i int, query string) (scored []Scored, err error) {
	s := e.strategies[i]
	sc, err := e.prepare(ctx, i)
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			scored = nil
			err = &StrategyError{Strategy: s.Name(), Err: fmt.Errorf("%w: panic: %v", ErrStrategyExecution, r)}
		}
	}()
	scored, err = s.Search(ctx, query, e.corpus, sc)
	if err != nil {
		return nil, &StrategyError{Strategy: s.Name(), Err: fmt.Errorf("%w: %w", ErrStrategyExecution, err)}
	}
	return scored, nil
}

// Fuse runs every strategy, drops scores below the threshold and merges the
// remainder into a flat ranking and per-family groups. Strategy failures are
// reported as warnings and never abort the query.
func (e *Engine) Fuse(ctx context.Context, query string, opts FuseOptions) Report {
	opts = normalizeFuseOptions(opts)
	report := Report{
		Query:     query,
		Threshold: opts.Threshold,
		Matches:   []Match{},
		Groups:    make([]Group, 0, len(Families)),
	}
	if e.corpus.Len() == 0 {
		err := e.sourceErr
		if err == nil {
			err = fmt.Errorf("%w: corpus is empty", ErrDataSource)
		}
		report.Warnings = append(report.Warnings, newWarning("", err))
		for _, f := range Families {
			report.Groups = append(report.Groups, Group{Family: f, Matches: []Match{}})
		}
		return report
	}

	var hits []Match
	for i, s := range e.strategies {
		scored, err := e.run(ctx, i, query)
		if err != nil {
			w := newWarning(s.Name(), err)
			e.logf("warning: %s", w.Message)
			report.Warnings = append(report.Warnings, w)
			continue
		}
		for _, sc := range scored {
			score := sc.Score
			if math.IsNaN(score) {
				continue
			}
			score = clampScore(score)
			if score < opts.Threshold {
				continue
			}
			key := NormalizeTerm(sc.Term)
			if key == "" {
				continue
			}
			hits = append(hits, Match{Term: key, Score: score, Strategy: s.Name(), Family: s.Family()})
		}
	}

	report.Matches = e.present(limitMatches(rankMatches(dedupeMatches(hits)), opts.FlatLimit))
	for _, f := range Families {
		var inFamily []Match
		for _, m := range hits {
			if m.Family == f {
				inFamily = append(inFamily, m)
			}
		}
		grouped := limitMatches(rankMatches(dedupeMatches(inFamily)), opts.GroupLimit)
		report.Groups = append(report.Groups, Group{Family: f, Matches: e.present(grouped)})
	}
	return report
}

func (e *Engine) present(matches []Match) []Match {
	out := make([]Match, len(matches))
	for i, m := range matches {
		m.Display = e.corpus.Display(m.Term)
		out[i] = m
	}
	return out
}

func normalizeFuseOptions(opts FuseOptions) FuseOptions {
	if math.IsNaN(opts.Threshold) {
		opts.Threshold = DefaultThreshold
	}
	opts.Threshold = clampScore(opts.Threshold)
	if opts.GroupLimit <= 0 {
		opts.GroupLimit = DefaultGroupLimit
	}
	if opts.FlatLimit < 0 {
		opts.FlatLimit = 0
	}
	return opts
}

// dedupeMatches keeps the highest scoring match per term. On equal scores the
// earlier match wins.
func dedupeMatches(in []Match) []Match {
	out := make([]Match, 0, len(in))
	pos := make(map[string]int, len(in))
	for _, m := range in {
		if i, ok := pos[m.Term]; ok {
			if m.Score > out[i].Score {
				out[i] = m
			}
			continue
		}
		pos[m.Term] = len(out)
		out = append(out, m)
	}
	return out
}

func rankMatches(in []Match) []Match {
	sort.SliceStable(in, func(i, j int) bool {
		if in[i].Score == in[j].Score {
			return in[i].Term < in[j].Term
		}
		return in[i].Score > in[j].Score
	})
	return in
}

func limitMatches(in []Match, k int) []Match {
	if k <= 0 || len(in) <= k {
		return in
	}
	return in[:k]
}

func sortScored(in []Scored) {
	sort.SliceStable(in, func(i, j int) bool {
		if in[i].Score == in[j].Score {
			return in[i].Term < in[j].Term
		}
		return in[i].Score > in[j].Score
	})
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}
