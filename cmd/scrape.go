package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/registry-scraper/internal/browser"
	"github.com/sells-group/registry-scraper/internal/captcha"
	"github.com/sells-group/registry-scraper/internal/config"
	"github.com/sells-group/registry-scraper/internal/crawl"
	"github.com/sells-group/registry-scraper/internal/model"
	"github.com/sells-group/registry-scraper/internal/output"
	"github.com/sells-group/registry-scraper/internal/proxy"
	"github.com/sells-group/registry-scraper/internal/registry"
	"github.com/sells-group/registry-scraper/internal/resilience"
	"github.com/sells-group/registry-scraper/internal/session"
)

var (
	scrapeQuery     string
	scrapeFullCrawl bool
	scrapeOutput    string
	scrapeHeaded    bool
	scrapeUseProxy  bool
	scrapeProxyURL  string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Crawl the registry and write records to a JSON file",
	Long:  "Solves the verification challenge once, then runs each query through the paginated search API, fetching registered-agent details per record. Exits successfully whenever an output file is produced, even from a partial crawl.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		queries, err := resolveQueries()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.CreateRun(ctx, queries)
		if err != nil {
			return err
		}
		log := zap.L().With(zap.String("run_id", run.ID))
		log.Info("starting crawl", zap.Strings("queries", queries), zap.String("output", scrapeOutput))

		proxyURL := scrapeProxyURL
		if proxyURL == "" && scrapeUseProxy {
			proxyURL, err = findProxy(ctx)
			if err != nil {
				log.Warn("proxy lookup failed, continuing without one", zap.Error(err))
				proxyURL = ""
			}
		}

		result, runErr := executeCrawl(ctx, queries, proxyURL)
		if result == nil {
			msg := eris.ToString(runErr, false)
			if err := st.FinishRun(ctx, run.ID, model.RunStatusFailed, 0, "", msg); err != nil {
				log.Error("record run failure", zap.Error(err))
			}
			return runErr
		}

		records := result.Records()
		if err := output.WriteJSON(scrapeOutput, records); err != nil {
			if ferr := st.FinishRun(ctx, run.ID, model.RunStatusFailed, len(records), "", eris.ToString(err, false)); ferr != nil {
				log.Error("record run failure", zap.Error(ferr))
			}
			return err
		}

		saved, err := st.SaveRecords(ctx, run.ID, records)
		if err != nil {
			log.Error("persist records", zap.Error(err))
		} else {
			log.Info("persisted records", zap.Int("new", saved))
		}

		status := model.RunStatusComplete
		errMsg := ""
		if runErr != nil {
			status = model.RunStatusPartial
			errMsg = eris.ToString(runErr, false)
			log.Warn("crawl ended early", zap.Error(runErr))
		}
		if err := st.FinishRun(ctx, run.ID, status, len(records), scrapeOutput, errMsg); err != nil {
			log.Error("record run result", zap.Error(err))
		}

		log.Info("crawl finished",
			zap.String("status", string(status)),
			zap.Int("records", len(records)),
			zap.Strings("queries_run", result.QueriesRun),
		)

		// The output file exists, so the run counts as a success even
		// when the crawl was cut short.
		return nil
	},
}

// resolveQueries decides what to search for: a single query, or the
// configured entity-type sweep for a full crawl.
func resolveQueries() ([]string, error) {
	if scrapeQuery != "" && scrapeFullCrawl {
		return nil, eris.New("--query and --full-crawl are mutually exclusive")
	}
	if scrapeQuery != "" {
		return []string{scrapeQuery}, nil
	}
	if scrapeFullCrawl {
		return cfg.Crawl.EntityTypes, nil
	}
	return nil, eris.New("either --query or --full-crawl is required")
}

// executeCrawl wires the browser, challenge gate, registry client, and
// orchestrator together and runs the crawl.
func executeCrawl(ctx context.Context, queries []string, proxyURL string) (*model.CrawlResult, error) {
	b, err := browser.New(browser.Options{
		Headed:    scrapeHeaded,
		ProxyURL:  proxyURL,
		UserAgent: cfg.Registry.UserAgent,
	})
	if err != nil {
		return nil, err
	}
	defer b.Close()

	transcriber := captcha.NewTranscriber(cfg.Captcha.TranscriberURL, cfg.Captcha.TranscriberKey)
	gate := captcha.NewGate(b, transcriber, captcha.GateConfig{
		PageURL:  cfg.Registry.BaseURL + "/search",
		Attempts: cfg.Captcha.MaxAttempts,
		Headed:   scrapeHeaded,
	})

	client := registry.NewClient(cfg.Registry.BaseURL,
		registry.WithRateLimit(cfg.Registry.RequestsPerSecond),
		registry.WithUserAgent(cfg.Registry.UserAgent),
	)

	sessions := session.NewProvider(gate, client, session.ProviderConfig{
		Budget:    time.Duration(cfg.Captcha.BudgetSecs) * time.Second,
		SeedQuery: queries[0],
	})

	driver := crawl.NewDriver(client, retryConfig(cfg.Crawl.Retry), zap.L())
	return crawl.NewOrchestrator(sessions, driver, zap.L()).Run(ctx, queries)
}

func findProxy(ctx context.Context) (string, error) {
	finder := proxy.NewFinder(
		proxy.WithListURL(cfg.Proxy.ListURL),
		proxy.WithTestURL(cfg.Proxy.TestURL),
		proxy.WithMaxChecks(cfg.Proxy.MaxChecks),
	)
	return finder.Find(ctx)
}

func retryConfig(rc config.RetryConfig) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    rc.MaxAttempts,
		InitialBackoff: time.Duration(rc.InitialBackoffMS) * time.Millisecond,
		MaxBackoff:     time.Duration(rc.MaxBackoffMS) * time.Millisecond,
	}
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeQuery, "query", "", "single search query (e.g. \"llc\")")
	scrapeCmd.Flags().BoolVar(&scrapeFullCrawl, "full-crawl", false, "sweep all configured entity-type queries")
	scrapeCmd.Flags().StringVar(&scrapeOutput, "output", "business_records.json", "output JSON file path")
	scrapeCmd.Flags().BoolVar(&scrapeHeaded, "headed", false, "run the browser visibly; enables manual challenge fallback")
	scrapeCmd.Flags().BoolVar(&scrapeUseProxy, "proxy", false, "find and use a free proxy for browser traffic")
	scrapeCmd.Flags().StringVar(&scrapeProxyURL, "proxy-url", "", "explicit proxy URL (overrides --proxy)")
	rootCmd.AddCommand(scrapeCmd)
}
