package retailer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"goldboard/internal/metrics"
)

// Listener receives the resolved config after every change.
type Listener func(Config)

// Service owns the session's configuration. The in-memory copy is the source
// of truth; persistence failures are reported but never roll it back.
type Service struct {
	store  Store
	key    string
	logger zerolog.Logger

	updateMu  sync.Mutex
	mu        sync.RWMutex
	doc       Partial
	cfg       Config
	listeners []Listener
}

// NewService builds a service over store for document key. A nil store keeps
// the configuration in memory only.
func NewService(store Store, key string, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		key:    key,
		logger: logger.With().Str("component", "retailer_config").Str("key", key).Logger(),
		doc:    Partial{},
		cfg:    Defaults(),
	}
}

// Subscribe registers fn for config changes.
func (s *Service) Subscribe(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Current returns the resolved configuration.
func (s *Service) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Load reads the stored document and resolves it over defaults. On store
// failure defaults stay in effect and the error is returned.
func (s *Service) Load(ctx context.Context) (Config, error) {
	if s.store == nil {
		return s.Current(), nil
	}

	doc, found, err := s.store.Get(ctx, s.key)
	if err != nil {
		s.logger.Error().Err(err).Msg("load retailer config failed; using defaults")
		return s.Current(), fmt.Errorf("load retailer config: %w", err)
	}
	if !found {
		s.logger.Info().Msg("no stored retailer config; using defaults")
		doc = Partial{}
	}

	cfg, err := Resolve(doc)
	if err != nil {
		s.logger.Error().Err(err).Msg("stored retailer config is invalid; using defaults")
		return s.Current(), err
	}

	s.apply(doc, cfg)
	return cfg, nil
}

// Update merges partial into the configuration and persists it as a partial
// write. Invalid updates are rejected without side effects.
func (s *Service) Update(ctx context.Context, partial Partial) (Config, error) {
	if err := CheckFields(partial); err != nil {
		return s.Current(), err
	}
	normalized, err := Normalize(partial)
	if err != nil {
		return s.Current(), err
	}

	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	s.mu.RLock()
	next := merge(s.doc, normalized)
	s.mu.RUnlock()

	cfg, err := Resolve(next)
	if err != nil {
		return s.Current(), err
	}
	if err := cfg.Validate(); err != nil {
		return s.Current(), err
	}

	// stores merge top-level keys only, so nested objects are written whole
	written := make(Partial, len(normalized))
	for key := range normalized {
		written[key] = next[key]
	}

	s.apply(next, cfg)
	return cfg, s.persist(ctx, written)
}

// ResetSection restores every field of section to its default value.
func (s *Service) ResetSection(ctx context.Context, section Section) (Config, error) {
	partial, err := SectionDefaults(section)
	if err != nil {
		return s.Current(), err
	}
	s.logger.Info().Str("section", string(section)).Msg("resetting config section")
	return s.Update(ctx, partial)
}

// Freeze stops new feed ticks from reaching the board.
func (s *Service) Freeze(ctx context.Context, at time.Time) (Config, error) {
	return s.Update(ctx, Partial{"ratesFrozen": true, "frozenAt": at.UTC().Format(time.RFC3339Nano)})
}

// Unfreeze resumes live ticks.
func (s *Service) Unfreeze(ctx context.Context) (Config, error) {
	return s.Update(ctx, Partial{"ratesFrozen": false, "frozenAt": nil})
}

func (s *Service) apply(doc Partial, cfg Config) {
	s.mu.Lock()
	s.doc = doc
	s.cfg = cfg
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
}

func (s *Service) persist(ctx context.Context, partial Partial) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Set(ctx, s.key, partial); err != nil {
		metrics.RecordConfigWrite(false)
		s.logger.Error().Err(err).Msg("persist retailer config failed; keeping in-memory copy")
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	metrics.RecordConfigWrite(true)
	return nil
}
