// Command copypatrol is the pipeline driver CLI (§6.3): store-changes runs
// the EventStreams listener, check-changes and reports run one pass of the
// batch pipeline across every enabled site, and db performs schema/row
// maintenance. Styled after the ingestor's single-binary, flag-then-action
// entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/copypatrol/copypatrol-go/internal/config"
	"github.com/copypatrol/copypatrol-go/internal/diffextract"
	"github.com/copypatrol/copypatrol-go/internal/digest"
	"github.com/copypatrol/copypatrol-go/internal/email"
	"github.com/copypatrol/copypatrol-go/internal/index"
	"github.com/copypatrol/copypatrol-go/internal/ingest"
	"github.com/copypatrol/copypatrol-go/internal/obsv"
	"github.com/copypatrol/copypatrol-go/internal/pipeline"
	"github.com/copypatrol/copypatrol-go/internal/store"
	"github.com/copypatrol/copypatrol-go/internal/stream"
	"github.com/copypatrol/copypatrol-go/internal/tca"
	"github.com/copypatrol/copypatrol-go/internal/wikiapi"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: copypatrol <store-changes|check-changes|reports|db> [args]")
		os.Exit(2)
	}
	action := os.Args[1]
	args := os.Args[2:]

	verbose := false
	for _, a := range args {
		if a == "-verbose" || a == "--verbose" {
			verbose = true
		}
	}
	logger := setupLogger(verbose)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	obsv.Register()
	opsFeed := obsv.NewOpsFeed(logger)
	metricsServer := obsv.NewServer(cfg.Infra.MetricsPort, opsFeed)
	if err := metricsServer.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start metrics server")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Stop(ctx)
	}()

	var runErr error
	switch action {
	case "store-changes":
		runErr = runStoreChanges(cfg, logger, args)
	case "check-changes":
		runErr = runCheckChanges(cfg, logger, opsFeed)
	case "reports":
		runErr = runReports(cfg, logger, opsFeed)
	case "ingest":
		runErr = runIngest(cfg, logger)
	case "digest":
		runErr = runDigest(cfg, logger)
	case "db":
		runErr = runDB(cfg, logger, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown action %q\n", action)
		os.Exit(2)
	}
	if runErr != nil {
		logger.Fatal().Err(runErr).Str("action", action).Msg("action failed")
	}
}

func setupLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"}
	return zerolog.New(output).With().Timestamp().Str("component", "copypatrol").Logger()
}

// runStoreChanges runs the `store-changes [--since ISO8601] [--total|-n N]`
// action: connect to the recentchange stream and publish accepted events to
// Kafka until the stream closes, the process is signalled, or --total
// events have been accepted.
func runStoreChanges(cfg *config.Config, logger zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("store-changes", flag.ExitOnError)
	since := fs.String("since", "", "resume the stream from this ISO8601 timestamp instead of the saved checkpoint")
	total := fs.Int64("total", 0, "stop after accepting this many events")
	fs.Int64Var(total, "n", 0, "alias for -total")
	_ = fs.Bool("verbose", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var sinceTime time.Time
	if *since != "" {
		t, err := time.Parse(time.RFC3339, *since)
		if err != nil {
			return fmt.Errorf("invalid -since value %q: %w", *since, err)
		}
		sinceTime = t
	}

	redisClient, err := newRedisClient(cfg.Infra.RedisURL)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	checkpoint := store.NewCheckpoint(redisClient, "recentchange")

	publisher := stream.NewKafkaPublisher(cfg.Infra.KafkaBrokers, stream.DefaultTopic, logger)
	defer publisher.Close()

	listener := stream.NewListener(cfg, publisher, checkpoint, sinceTime, logger)
	if *total > 0 {
		listener.SetMaxAccepted(*total)
	}
	if err := listener.Start(); err != nil {
		return err
	}

	waitForShutdown(logger, listener.Stop)
	return nil
}

// runIngest runs the Kafka-to-store consumer that store-changes hands off
// to; a separate invocation so the SSE listener's throughput is never
// blocked on database writes.
func runIngest(cfg *config.Config, logger zerolog.Logger) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	consumer := ingest.NewConsumer(cfg.Infra.KafkaBrokers, stream.DefaultTopic, "copypatrol-ingest", st, logger)
	consumer.Start()
	waitForShutdown(logger, func() { _ = consumer.Stop() })
	return nil
}

// runCheckChanges runs one `check-changes` pass (UNSUBMITTED/CREATED →
// UPLOADED) across every enabled domain.
func runCheckChanges(cfg *config.Config, logger zerolog.Logger, opsFeed *obsv.OpsFeed) error {
	p, cleanup, err := buildPipeline(cfg, logger, opsFeed)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	for _, domain := range cfg.Domains() {
		if err := p.CheckChanges(ctx, domain); err != nil {
			logger.Error().Err(err).Str("domain", domain).Msg("check-changes failed")
		}
	}
	return nil
}

// runReports runs one `reports` pass (UPLOADED → PENDING → READY|deleted),
// matching cli.py's order: generate reports for UPLOADED rows first, then
// check already-generated reports.
func runReports(cfg *config.Config, logger zerolog.Logger, opsFeed *obsv.OpsFeed) error {
	p, cleanup, err := buildPipeline(cfg, logger, opsFeed)
	if err != nil {
		return err
	}
	defer cleanup()

	redisClient, err := newRedisClient(cfg.Infra.RedisURL)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	ctx := context.Background()
	if err := p.GenerateReports(ctx); err != nil {
		logger.Error().Err(err).Msg("generate-reports failed")
	}

	wiki := wikiapi.NewMediaWikiClient(nil, wikiapi.DefaultUserAgent, logger)
	loader := pipeline.NewCachedIgnoreListLoader(redisClient, 0, logger)

	for _, domain := range cfg.Domains() {
		site, _ := cfg.SiteConfig(domain)
		ignore, err := loadIgnoreList(ctx, wiki, loader, domain, cfg.IgnoreListTitle)
		if err != nil {
			logger.Error().Err(err).Str("domain", domain).Msg("failed to load ignore list, treating as empty")
			ignore = pipeline.ParseIgnoreList("")
		}
		if err := p.CheckReports(ctx, domain, ignore, site.PagetriageNamespaces); err != nil {
			logger.Error().Err(err).Str("domain", domain).Msg("check-reports failed")
		}
	}
	return nil
}

// runDigest sends the operator digest email immediately (`digest` action,
// a supplement to §6.3 wiring the digest scheduler's one-shot path into the
// CLI instead of only the long-running ticker).
func runDigest(cfg *config.Config, logger zerolog.Logger) error {
	if !cfg.Infra.DigestEnabled {
		logger.Info().Msg("digest disabled in configuration, nothing to do")
		return nil
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	sender := email.NewLogSender(logger)
	sched := digest.NewScheduler(digest.NewCollector(st), sender, digest.SchedulerConfig{ToAddress: cfg.Infra.DigestToAddress}, logger)
	return sched.RunNow(context.Background())
}

// runDB runs the `db (--create-tables | --remove-revision ID | --remove-submission UUID)`
// maintenance action.
func runDB(cfg *config.Config, logger zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	createTables := fs.Bool("create-tables", false, "create the diffs/report_sources schema")
	removeRevision := fs.String("remove-revision", "", "rev_id to remove")
	removeSubmission := fs.String("remove-submission", "", "submission UUID to remove")
	if err := fs.Parse(args); err != nil {
		return err
	}

	set := 0
	for _, v := range []bool{*createTables, *removeRevision != "", *removeSubmission != ""} {
		if v {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("db: exactly one of -create-tables, -remove-revision, -remove-submission is required")
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	switch {
	case *createTables:
		return st.CreateTables()
	case *removeRevision != "":
		revID, err := strconv.ParseUint(*removeRevision, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid rev_id %q: %w", *removeRevision, err)
		}
		return st.RemoveRevision(revID)
	case *removeSubmission != "":
		if _, err := uuid.Parse(*removeSubmission); err != nil {
			return fmt.Errorf("invalid submission id %q: %w", *removeSubmission, err)
		}
		return st.RemoveSubmission(*removeSubmission)
	}
	return nil
}

func buildPipeline(cfg *config.Config, logger zerolog.Logger, opsFeed *obsv.OpsFeed) (*pipeline.Pipeline, func(), error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	ctx := context.Background()
	tcaClient, err := tca.NewClient(ctx, cfg.TCA.Domain, cfg.TCA.Key, logger)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("build similarity client: %w", err)
	}

	wiki := wikiapi.NewMediaWikiClient(nil, wikiapi.DefaultUserAgent, logger)
	checker := diffextract.NewChecker(wiki, logger)

	p := pipeline.New(st, checker, tcaClient, wiki, logger).WithOpsFeed(opsFeed)

	if cfg.Infra.ElasticsearchURL != "" {
		idx, err := index.NewIndexer(cfg.Infra.ElasticsearchURL, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("elasticsearch indexing disabled: failed to build indexer")
		} else {
			p = p.WithIndexer(idx)
		}
	}

	cleanup := func() { st.Close() }
	return p, cleanup, nil
}

func loadIgnoreList(ctx context.Context, wiki wikiapi.Client, loader *pipeline.CachedIgnoreListLoader, domain, title string) (*pipeline.IgnoreList, error) {
	if title == "" {
		return pipeline.ParseIgnoreList(""), nil
	}
	return loader.Load(ctx, domain, title, func(ctx context.Context) (string, error) {
		ref, ok, err := wiki.PageExists(ctx, domain, title)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", nil
		}
		revs, err := wiki.PageRevisions(ctx, domain, ref, 1)
		if err != nil {
			return "", err
		}
		if len(revs) == 0 {
			return "", nil
		}
		return revs[0].Text, nil
	})
}

func openStore(cfg *config.Config) (*store.Store, error) {
	return store.Open(cfg.Database.Database)
}

func newRedisClient(rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

func waitForShutdown(logger zerolog.Logger, stop func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	stop()
}
