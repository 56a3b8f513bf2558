package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dusseau-dev/mission-control/internal/metrics"
	"github.com/dusseau-dev/mission-control/internal/tracing"
)

// FailoverProvider tries auth profiles in priority order (lower first),
// retrying transient errors with exponential backoff and cooling down
// profiles that keep failing.
type FailoverProvider struct {
	mu         sync.Mutex
	profiles   []AuthProfile
	providers  map[string]LLMProvider
	build      func(AuthProfile) (LLMProvider, error)
	maxRetries int
	retryBase  time.Duration
	cooldown   time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

// FailoverOptions tunes a FailoverProvider
type FailoverOptions struct {
	MaxRetries int                                // attempts per profile, default 3
	RetryBase  time.Duration                      // first backoff, default 1s
	Cooldown   time.Duration                      // per consecutive failure, default 1m
	Build      func(AuthProfile) (LLMProvider, error) // default ProviderFactory
	Now        func() time.Time
	Logger     zerolog.Logger
}

// NewFailoverProvider creates a provider over profiles
func NewFailoverProvider(profiles []AuthProfile, opts FailoverOptions) (*FailoverProvider, error) {
	if len(profiles) == 0 {
		return nil, errors.New("no auth profiles configured")
	}

	sorted := make([]AuthProfile, len(profiles))
	copy(sorted, profiles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	for i := range sorted {
		if sorted[i].ID == "" {
			sorted[i].ID = fmt.Sprintf("%s-%d", sorted[i].Provider, i)
		}
	}

	build := opts.Build
	if build == nil {
		factory := &ProviderFactory{}
		build = factory.NewProvider
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = time.Second
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &FailoverProvider{
		profiles:   sorted,
		providers:  make(map[string]LLMProvider),
		build:      build,
		maxRetries: opts.MaxRetries,
		retryBase:  opts.RetryBase,
		cooldown:   opts.Cooldown,
		now:        opts.Now,
		logger:     opts.Logger,
	}, nil
}

// Provider returns the provider name
func (f *FailoverProvider) Provider() string {
	return "failover"
}

// Call tries each available profile until one succeeds
func (f *FailoverProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	f.mu.Lock()
	profiles := make([]AuthProfile, len(f.profiles))
	copy(profiles, f.profiles)
	f.mu.Unlock()

	logger := tracing.LoggerFromContext(ctx, f.logger)
	var lastErr error

	for _, profile := range profiles {
		if profile.CooldownUntil != nil && f.now().UnixMilli() < *profile.CooldownUntil {
			metrics.SetProviderCooldown(profile.Provider, true)
			logger.Debug().Str("profileId", profile.ID).Msg("Skipping profile in cooldown")
			continue
		}

		provider, err := f.provider(profile)
		if err != nil {
			lastErr = err
			logger.Warn().Str("profileId", profile.ID).Err(err).Msg("Failed to create provider")
			continue
		}

		req := request
		if profile.Model != "" {
			req.Model = profile.Model
		}

		resp, err := f.callWithRetry(ctx, provider, req, logger)
		if err == nil {
			f.markSuccess(profile.ID)
			metrics.RecordModelCall(profile.Provider, true)
			return resp, nil
		}

		lastErr = err
		metrics.RecordModelCall(profile.Provider, false)
		logger.Warn().Str("profileId", profile.ID).Err(err).Msg("Auth profile failed")
		f.markFailure(profile.ID)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !IsRetryableError(err) {
			return nil, err
		}
	}

	if lastErr == nil {
		lastErr = errors.New("every profile is cooling down")
	}
	return nil, fmt.Errorf("all auth profiles failed: %w", lastErr)
}

func (f *FailoverProvider) provider(profile AuthProfile) (LLMProvider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.providers[profile.ID]; ok {
		return p, nil
	}
	p, err := f.build(profile)
	if err != nil {
		return nil, err
	}
	f.providers[profile.ID] = p
	return p, nil
}

func (f *FailoverProvider) callWithRetry(ctx context.Context, provider LLMProvider, request LLMRequest, logger zerolog.Logger) (*LLMResponse, error) {
	var lastErr error
	for attempt := 0; attempt < f.maxRetries; attempt++ {
		resp, err := provider.Call(ctx, request)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !IsRetryableError(err) || attempt == f.maxRetries-1 {
			break
		}

		delay := backoff(attempt, f.retryBase)
		logger.Info().Int("attempt", attempt+1).Dur("delay", delay).Msg("Retrying after error")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

func (f *FailoverProvider) markSuccess(profileID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.profiles {
		if f.profiles[i].ID == profileID {
			f.profiles[i].FailureCount = 0
			f.profiles[i].CooldownUntil = nil
			metrics.SetProviderCooldown(f.profiles[i].Provider, false)
			return
		}
	}
}

func (f *FailoverProvider) markFailure(profileID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.profiles {
		if f.profiles[i].ID == profileID {
			f.profiles[i].FailureCount++
			until := f.now().Add(f.cooldown * time.Duration(f.profiles[i].FailureCount)).UnixMilli()
			f.profiles[i].CooldownUntil = &until
			metrics.SetProviderCooldown(f.profiles[i].Provider, true)
			return
		}
	}
}

// Profiles returns a snapshot of the profile states
func (f *FailoverProvider) Profiles() []AuthProfile {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]AuthProfile, len(f.profiles))
	copy(out, f.profiles)
	return out
}
