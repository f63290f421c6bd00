package brandmatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
)

// Service owns the corpus, the configured strategies and the engine built
// from them. Semantic models are opened once and shared across corpus
// reloads; the engine is replaced whenever the corpus version changes.
type Service struct {
	cfgMu sync.RWMutex
	cfg   Config

	loader     CorpusLoader
	strategies []Strategy
	factories  map[string]EmbedderFactory
	eager      bool

	mu      sync.RWMutex
	engine  *Engine
	loadErr error

	logger *log.Logger
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithCorpusLoader replaces the file loader derived from the configuration.
func WithCorpusLoader(loader CorpusLoader) ServiceOption {
	return func(s *Service) { s.loader = loader }
}

// WithStrategies replaces the strategies derived from the configuration.
func WithStrategies(strategies ...Strategy) ServiceOption {
	return func(s *Service) { s.strategies = append([]Strategy(nil), strategies...) }
}

// WithEmbedderFactory overrides the embedder opened for the semantic model name.
func WithEmbedderFactory(name string, factory EmbedderFactory) ServiceOption {
	return func(s *Service) {
		if s.factories == nil {
			s.factories = make(map[string]EmbedderFactory)
		}
		s.factories[name] = factory
	}
}

// WithEagerPrepare builds every strategy context right after each corpus load
// instead of on the first query.
func WithEagerPrepare() ServiceOption {
	return func(s *Service) { s.eager = true }
}

// NewService builds the strategies from cfg and loads the corpus. A corpus
// that cannot be loaded leaves the service serving an empty corpus; every
// query then reports the load failure as a warning.
func NewService(ctx context.Context, cfg Config, logger *log.Logger, opts ...ServiceOption) (*Service, error) {
	cfg.ApplyDefaults()
	s := &Service{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	if len(cfg.Corpus.HeaderNames) > 0 {
		SetHeaderNames(cfg.Corpus.HeaderNames)
	}
	if s.loader == nil {
		s.loader = FileLoader{Path: cfg.Corpus.Path, Header: cfg.Corpus.Header, Sheet: cfg.Corpus.Sheet}
	}
	if s.strategies == nil {
		strategies, err := BuildStrategies(cfg, s.factories)
		if err != nil {
			return nil, err
		}
		s.strategies = strategies
	}
	if err := s.Reload(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logf("corpus unavailable, continuing with an empty corpus: %v", err)
	}
	return s, nil
}

// BuildStrategies creates the strategies selected by cfg.Strategies, in that
// order, or every strategy when the list is empty. factories overrides the
// ORT embedder of a semantic model by name.
func BuildStrategies(cfg Config, factories map[string]EmbedderFactory) ([]Strategy, error) {
	if _, err := ParseCosineScaling(string(cfg.Semantic.Scaling)); err != nil {
		return nil, fmt.Errorf("build strategies: %w", err)
	}
	cfg.ApplyDefaults()
	builders := make(map[string]func() Strategy)
	var order []string
	for _, m := range cfg.Semantic.Models {
		name := strings.ToLower(strings.TrimSpace(m.Name))
		if name == "" {
			continue
		}
		factory, ok := factories[name]
		if !ok {
			factory = OrtEmbedderFactory(m.Embedder)
		}
		builders[name] = func() Strategy { return NewSemanticStrategy(name, factory, cfg.Semantic.Scaling) }
		if m.Enabled {
			order = append(order, name)
		}
	}
	builders[StrategyLevenshtein] = func() Strategy { return NewEditStrategy() }
	builders[StrategyNGram] = func() Strategy { return NewNGramStrategy(cfg.NGram.N) }
	builders[StrategyPhonetic] = func() Strategy {
		return NewPhoneticStrategy(PhoneticOptions{
			SyllablePenalty: cfg.Phonetic.SyllablePenalty,
			PerSyllable:     cfg.Phonetic.PerSyllable,
			MinLength:       cfg.Phonetic.MinLength,
		})
	}
	order = append(order, StrategyLevenshtein, StrategyNGram, StrategyPhonetic)
	if len(cfg.Strategies) > 0 {
		order = order[:0]
		for _, name := range cfg.Strategies {
			order = append(order, strings.ToLower(strings.TrimSpace(name)))
		}
	}

	seen := make(map[string]bool, len(order))
	out := make([]Strategy, 0, len(order))
	for _, name := range order {
		if seen[name] {
			continue
		}
		build, ok := builders[name]
		if !ok {
			return nil, fmt.Errorf("build strategies: %w: %q", ErrUnknownStrategy, name)
		}
		seen[name] = true
		out = append(out, build())
	}
	return out, nil
}

// Reload reads the corpus again. An unchanged corpus keeps the current engine
// and its prepared indices. When loading fails the previous corpus stays in
// service, or an empty one on first load, and the error is returned.
func (s *Service) Reload(ctx context.Context) error {
	s.cfgMu.RLock()
	loader := s.loader
	s.cfgMu.RUnlock()
	corpus, err := loader.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrDataSource) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", ErrDataSource, err)
		}
		s.mu.Lock()
		if s.engine == nil || s.engine.Corpus().Len() == 0 {
			s.engine = NewEngine(nil, s.strategies, WithLogger(s.logger), WithSourceError(err))
			s.loadErr = err
		}
		s.mu.Unlock()
		return fmt.Errorf("load corpus: %w", err)
	}

	s.mu.RLock()
	current := s.engine
	s.mu.RUnlock()
	if current != nil && current.Corpus().Len() > 0 && current.Corpus().Version() == corpus.Version() {
		s.logf("corpus unchanged (%d terms, version %016x)", corpus.Len(), corpus.Version())
		return nil
	}

	engine := NewEngine(corpus, s.strategies, WithLogger(s.logger))
	if s.eager {
		if err := engine.Prepare(ctx); err != nil {
			s.logf("prepare strategies: %v", err)
		}
	}
	s.mu.Lock()
	s.engine = engine
	s.loadErr = nil
	s.mu.Unlock()
	s.logf("corpus loaded (%d terms, version %016x)", corpus.Len(), corpus.Version())
	return nil
}

// UseCorpusFile switches the service to the brand list at path and reloads it.
// The path is kept in the configuration so SaveConfig persists it.
func (s *Service) UseCorpusFile(ctx context.Context, path string) error {
	s.cfgMu.Lock()
	s.cfg.Corpus.Path = path
	s.loader = FileLoader{Path: path, Header: s.cfg.Corpus.Header, Sheet: s.cfg.Corpus.Sheet}
	s.cfgMu.Unlock()
	return s.Reload(ctx)
}

// Prepare builds the strategy contexts of the corpus in service ahead of the
// first query. Failing strategies are reported but stay isolated.
func (s *Service) Prepare(ctx context.Context) error {
	return s.current().Prepare(ctx)
}

func (s *Service) current() *Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Config returns a copy of the current configuration.
func (s *Service) Config() Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg.Clone()
}

// UpdateConfig replaces the fusion settings. Strategy settings take effect
// only for a new Service; use UseCorpusFile to switch the corpus.
func (s *Service) UpdateConfig(cfg Config) {
	cfg.ApplyDefaults()
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
}

// Options returns the configured fusion options with threshold replaced.
func (s *Service) Options(threshold float64) FuseOptions {
	opts := s.Config().FuseOptions()
	opts.Threshold = threshold
	return opts
}

// Fuse answers one query with the configured caps and the given threshold.
func (s *Service) Fuse(ctx context.Context, query string, threshold float64) Report {
	return s.FuseWith(ctx, query, s.Options(threshold))
}

// FuseWith answers one query with explicit options.
func (s *Service) FuseWith(ctx context.Context, query string, opts FuseOptions) Report {
	return s.current().Fuse(ctx, query, opts)
}

// FuseAll answers each query in order. It stops at the first cancellation
// and returns the reports produced so far.
func (s *Service) FuseAll(ctx context.Context, queries []string, opts FuseOptions) ([]Report, error) {
	engine := s.current()
	reports := make([]Report, 0, len(queries))
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		reports = append(reports, engine.Fuse(ctx, q, opts))
	}
	return reports, nil
}

// Search runs a single strategy by name.
func (s *Service) Search(ctx context.Context, name, query string) ([]Scored, error) {
	return s.current().Search(ctx, strings.ToLower(strings.TrimSpace(name)), query)
}

// StrategyNames lists the configured strategies in invocation order.
func (s *Service) StrategyNames() []string {
	return s.current().StrategyNames()
}

// CorpusSize returns the number of distinct terms in service.
func (s *Service) CorpusSize() int {
	return s.current().Corpus().Len()
}

// CorpusVersion returns the fingerprint of the corpus in service.
func (s *Service) CorpusVersion() uint64 {
	return s.current().Corpus().Version()
}

// LoadError returns the reason the corpus is empty, if any.
func (s *Service) LoadError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

// Close releases embedder resources held by the strategies.
func (s *Service) Close() error {
	var errs []error
	for _, st := range s.strategies {
		if c, ok := st.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", st.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Service) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
