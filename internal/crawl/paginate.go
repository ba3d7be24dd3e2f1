// Package crawl drives the paginated multi-query crawl: one query at a
// time, one page at a time, one request at a time. There is no internal
// concurrency; a backoff or rate-limit wait suspends the whole pipeline.
package crawl

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/registry-scraper/internal/model"
	"github.com/sells-group/registry-scraper/internal/registry"
	"github.com/sells-group/registry-scraper/internal/resilience"
)

// Driver walks every result page for a single query and enriches each
// summary with detail-page agent fields.
type Driver struct {
	client registry.Client
	retry  resilience.RetryConfig
	log    *zap.Logger
}

// NewDriver creates a pagination driver. A nil logger falls back to the
// global one.
func NewDriver(client registry.Client, retry resilience.RetryConfig, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.L()
	}
	return &Driver{
		client: client,
		retry:  retry,
		log:    log.With(zap.String("component", "crawl.driver")),
	}
}

// ScrapeQuery fetches all pages for one query in server order and returns
// the assembled records. On a page failure that survives the retry policy
// the remaining pages are abandoned and the records collected so far are
// returned together with the error; the caller decides whether the run
// continues. A single record's detail failure never aborts the query.
func (d *Driver) ScrapeQuery(ctx context.Context, session model.Session, query string) ([]model.BusinessRecord, error) {
	log := d.log.With(zap.String("query", query))

	first, err := d.fetchPage(ctx, session, query, 1)
	if err != nil {
		return nil, eris.Wrapf(err, "crawl: query %q page 1", query)
	}

	log.Info("search started",
		zap.Int("total_results", first.Total),
		zap.Int("total_pages", first.TotalPages),
	)

	records := d.enrichPage(ctx, session, query, first)

	for pageNum := 2; pageNum <= first.TotalPages; pageNum++ {
		page, err := d.fetchPage(ctx, session, query, pageNum)
		if err != nil {
			// Remaining pages for this query are lost; the run goes on.
			log.Error("page fetch failed, aborting query",
				zap.Int("page", pageNum),
				zap.Int("records_so_far", len(records)),
				zap.Error(err),
			)
			return records, eris.Wrapf(err, "crawl: query %q page %d", query, pageNum)
		}
		records = append(records, d.enrichPage(ctx, session, query, page)...)
	}

	log.Info("query complete", zap.Int("records", len(records)))
	return records, nil
}

// fetchPage runs one search call under the retry policy. Session expiry
// is never retried; it surfaces immediately.
func (d *Driver) fetchPage(ctx context.Context, session model.Session, query string, pageNum int) (model.SearchPage, error) {
	cfg := d.retry
	cfg.OnRetry = resilience.RetryLogger("search", query, pageNum)

	d.log.Info("searching", zap.String("query", query), zap.Int("page", pageNum))
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (model.SearchPage, error) {
		return d.client.Search(ctx, session, query, pageNum)
	})
}

// enrichPage merges detail-page agent fields into each summary on the
// page. Failures are logged with enough context to reproduce and the
// summary is kept with agent fields absent.
func (d *Driver) enrichPage(ctx context.Context, session model.Session, query string, page model.SearchPage) []model.BusinessRecord {
	records := make([]model.BusinessRecord, 0, len(page.Items))
	for _, summary := range page.Items {
		records = append(records, d.enrich(ctx, session, query, page.Page, summary))
	}
	return records
}

func (d *Driver) enrich(ctx context.Context, session model.Session, query string, pageNum int, summary model.BusinessRecord) model.BusinessRecord {
	id := summary.Key()
	if id == "" {
		return summary
	}

	cfg := d.retry
	cfg.OnRetry = resilience.RetryLogger("details", query, pageNum)

	details, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (model.AgentDetails, error) {
		return d.client.FetchDetails(ctx, session, id)
	})
	if err != nil {
		level := d.log.Warn
		if errors.Is(err, registry.ErrNotFound) {
			level = d.log.Info
		}
		level("detail fetch failed, keeping summary",
			zap.String("query", query),
			zap.Int("page", pageNum),
			zap.String("registration_id", id),
			zap.Error(err),
		)
		return summary
	}

	return summary.WithAgent(details)
}
