package crawl

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/registry-scraper/internal/model"
)

// SessionProvider acquires the session token that authenticates every
// search and detail call. Implemented by internal/session; faked in tests.
type SessionProvider interface {
	Acquire(ctx context.Context) (model.Session, error)
}

// QueryScraper is the single-query pagination contract the orchestrator
// fans out over. *Driver satisfies it.
type QueryScraper interface {
	ScrapeQuery(ctx context.Context, session model.Session, query string) ([]model.BusinessRecord, error)
}

// Orchestrator runs the full crawl: one session, then every query in
// order, merging records first-seen-wins. It owns no retry logic.
type Orchestrator struct {
	sessions SessionProvider
	scraper  QueryScraper
	log      *zap.Logger
}

// NewOrchestrator wires a session provider and a query scraper together.
func NewOrchestrator(sessions SessionProvider, scraper QueryScraper, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.L()
	}
	return &Orchestrator{
		sessions: sessions,
		scraper:  scraper,
		log:      log.With(zap.String("component", "crawl.orchestrator")),
	}
}

// Run executes the crawl over the given queries. Session acquisition
// happens exactly once; if it fails nothing else runs and the error is
// fatal. Per-query failures (expired session, exhausted retries) are
// logged and the remaining queries still execute. The result always
// reflects every query that ran, however partially.
func (o *Orchestrator) Run(ctx context.Context, queries []string) (*model.CrawlResult, error) {
	if len(queries) == 0 {
		return nil, eris.New("crawl: no queries given")
	}

	session, err := o.sessions.Acquire(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "crawl: acquire session")
	}

	result := model.NewCrawlResult()
	for i, query := range queries {
		o.log.Info("starting query",
			zap.String("query", query),
			zap.Int("index", i+1),
			zap.Int("of", len(queries)),
		)

		records, err := o.scraper.ScrapeQuery(ctx, session, query)
		result.QueriesRun = append(result.QueriesRun, query)
		kept := result.AddAll(records)

		if err != nil {
			o.log.Error("query aborted",
				zap.String("query", query),
				zap.Int("partial_records", len(records)),
				zap.Error(err),
			)
		}

		o.log.Info("query merged",
			zap.String("query", query),
			zap.Int("returned", len(records)),
			zap.Int("new", kept),
			zap.Int("unique_total", result.Len()),
		)

		if ctx.Err() != nil {
			return result, eris.Wrap(ctx.Err(), "crawl: canceled")
		}
	}

	o.log.Info("crawl complete",
		zap.Int("queries", len(result.QueriesRun)),
		zap.Int("unique_records", result.Len()),
	)
	return result, nil
}
