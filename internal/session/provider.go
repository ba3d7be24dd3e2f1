// Package session mints the search session the registry requires on
// every API call. Acquisition runs once per crawl: a challenge solve
// followed by a token exchange. A failed acquisition is fatal, never
// retried.
package session

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/registry-scraper/internal/model"
	"github.com/sells-group/registry-scraper/internal/registry"
)

// ChallengeSolver produces a challenge response token. Implemented by
// captcha.Gate.
type ChallengeSolver interface {
	Solve(ctx context.Context) (string, error)
}

// TokenExchanger trades a challenge token for a search session token.
// Implemented by the registry client.
type TokenExchanger interface {
	ExchangeToken(ctx context.Context, challengeToken, query string) (string, error)
}

// Provider acquires a search session by solving the challenge and
// exchanging the resulting token.
type Provider struct {
	solver    ChallengeSolver
	exchanger TokenExchanger
	budget    time.Duration
	seedQuery string
	log       *zap.Logger
}

// ProviderConfig configures a Provider.
type ProviderConfig struct {
	// Budget bounds the whole acquisition, challenge solving included.
	// Default: 5 minutes.
	Budget time.Duration
	// SeedQuery is the query sent with the token exchange. The registry
	// validates the exchange against a concrete search.
	SeedQuery string
}

// NewProvider wires a solver and an exchanger into a session provider.
func NewProvider(solver ChallengeSolver, exchanger TokenExchanger, cfg ProviderConfig) *Provider {
	budget := cfg.Budget
	if budget <= 0 {
		budget = 5 * time.Minute
	}
	seed := cfg.SeedQuery
	if seed == "" {
		seed = "llc"
	}
	return &Provider{
		solver:    solver,
		exchanger: exchanger,
		budget:    budget,
		seedQuery: seed,
		log:       zap.L().With(zap.String("component", "session.provider")),
	}
}

// Acquire solves the challenge and exchanges the token for a session.
// Any failure comes back as an AuthError; callers must treat it as
// fatal to the run.
func (p *Provider) Acquire(ctx context.Context) (model.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, p.budget)
	defer cancel()

	start := time.Now()
	p.log.Info("acquiring search session", zap.Duration("budget", p.budget))

	challengeToken, err := p.solver.Solve(ctx)
	if err != nil {
		return model.Session{}, eris.Wrap(registry.NewAuthError("challenge unsolved", err), "session: acquire")
	}
	p.log.Info("challenge cleared", zap.Duration("elapsed", time.Since(start)))

	sessionToken, err := p.exchanger.ExchangeToken(ctx, challengeToken, p.seedQuery)
	if err != nil {
		return model.Session{}, eris.Wrap(registry.NewAuthError("token exchange rejected", err), "session: acquire")
	}

	p.log.Info("session acquired", zap.Duration("elapsed", time.Since(start)))
	return model.Session{Token: sessionToken, CreatedAt: time.Now()}, nil
}
