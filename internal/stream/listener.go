// Package stream consumes MediaWiki's recentchange/revision-create
// EventStreams feed and republishes the revisions worth checking onto
// Kafka (§4.1 of the specification), adapted from the ingestor's SSE
// client to the five-filter acceptance logic the pipeline specifies
// instead of the language/bot filters the teacher used.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/r3labs/sse/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/copypatrol/copypatrol-go/internal/config"
	"github.com/copypatrol/copypatrol-go/internal/models"
	"github.com/copypatrol/copypatrol-go/internal/obsv"
	"github.com/copypatrol/copypatrol-go/internal/store"
)

const (
	StreamURL         = "https://stream.wikimedia.org/v2/stream/revision-create"
	UserAgent         = "copypatrol-go/1.0 (https://github.com/copypatrol/copypatrol-go)"
	ConnectionTimeout = 30 * time.Second
)

// Publisher hands an accepted revision-create event off for downstream
// processing (Kafka in production, an in-memory slice in tests).
type Publisher interface {
	Publish(ctx context.Context, event models.RevisionCreateEvent) error
}

// Listener connects to the recentchange stream, applies the five-filter
// acceptance check per event, and forwards accepted events to a Publisher.
type Listener struct {
	sseClient   *sse.Client
	cfg         *config.Config
	logger      zerolog.Logger
	rateLimiter *rate.Limiter
	publisher   Publisher
	checkpoint  *store.Checkpoint

	maxAccepted   int64
	acceptedCount int64

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewListener builds a Listener over cfg's enabled domains, publishing
// accepted events to publisher. If since is non-zero, the stream is
// resumed from that point via EventStreams' `since` query parameter (the
// "store-changes --since" CLI option) instead of from the saved checkpoint.
// Otherwise the event id saved in checkpoint, if any, is sent as the
// Last-Event-ID of the first connection.
func NewListener(cfg *config.Config, publisher Publisher, checkpoint *store.Checkpoint, since time.Time, logger zerolog.Logger) *Listener {
	streamURL := StreamURL
	if !since.IsZero() {
		streamURL += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	}

	client := sse.NewClient(streamURL)
	client.Connection.Transport = &http.Transport{ResponseHeaderTimeout: ConnectionTimeout}
	client.Headers = map[string]string{
		"Accept":     "text/event-stream",
		"User-Agent": UserAgent,
	}
	if since.IsZero() && checkpoint != nil {
		if id, err := checkpoint.Load(context.Background()); err == nil && id != "" {
			client.LastEventID.Store([]byte(id))
		}
	}

	return &Listener{
		sseClient:   client,
		cfg:         cfg,
		logger:      logger.With().Str("component", "stream").Logger(),
		rateLimiter: rate.NewLimiter(rate.Limit(50), 100),
		publisher:   publisher,
		checkpoint:  checkpoint,
		stopChan:    make(chan struct{}),
	}
}

// SetMaxAccepted stops the listener once n events have been accepted and
// published (the "store-changes --total" CLI option). Zero means unbounded.
// Must be called before Start.
func (l *Listener) SetMaxAccepted(n int64) {
	l.maxAccepted = n
}

// Start begins the reconnecting event loop in the background.
func (l *Listener) Start() error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return fmt.Errorf("listener already running")
	}
	l.running = true
	l.mu.Unlock()

	l.wg.Add(1)
	go l.eventLoop()
	return nil
}

// Stop signals the event loop to exit and waits for it to finish.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
}

func (l *Listener) eventLoop() {
	defer l.wg.Done()
	delay := 1 * time.Second
	const maxDelay = 2 * time.Minute

	for {
		select {
		case <-l.stopChan:
			return
		default:
			if err := l.processStream(); err != nil {
				l.logger.Error().Err(err).Msg("stream processing failed, reconnecting")
				obsv.SSEReconnectsTotal.WithLabelValues().Inc()
				select {
				case <-l.stopChan:
					return
				case <-time.After(delay):
					delay *= 2
					if delay > maxDelay {
						delay = maxDelay
					}
				}
			} else {
				delay = 1 * time.Second
			}
		}
	}
}

func (l *Listener) processStream() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventChan := make(chan *sse.Event)
	go func() {
		if err := l.sseClient.SubscribeChanWithContext(ctx, "message", eventChan); err != nil {
			l.logger.Error().Err(err).Msg("subscribe failed")
		}
	}()

	for {
		select {
		case <-l.stopChan:
			return nil
		case event, ok := <-eventChan:
			if !ok {
				return fmt.Errorf("event channel closed")
			}
			if err := l.handleEvent(ctx, event); err != nil {
				l.logger.Warn().Err(err).Msg("failed to handle event")
			}
		}
	}
}

func (l *Listener) handleEvent(ctx context.Context, event *sse.Event) error {
	if event == nil || len(event.Data) == 0 {
		return nil
	}
	if err := l.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	var e models.RevisionCreateEvent
	if err := json.Unmarshal(event.Data, &e); err != nil {
		l.logger.Debug().Err(err).Msg("malformed event, skipping")
		return nil
	}

	obsv.RevisionsStreamedTotal.WithLabelValues(e.Meta.Domain).Inc()

	reason, accepted := l.accept(e)
	if !accepted {
		obsv.RevisionsFilteredTotal.WithLabelValues(e.Meta.Domain, reason).Inc()
		return nil
	}

	if err := l.publisher.Publish(ctx, e); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	obsv.RevisionsAcceptedTotal.WithLabelValues(e.Meta.Domain).Inc()

	if l.checkpoint != nil && len(event.ID) > 0 {
		if err := l.checkpoint.Save(ctx, string(event.ID)); err != nil {
			l.logger.Warn().Err(err).Msg("failed to save checkpoint")
		}
	}

	if l.maxAccepted > 0 && atomic.AddInt64(&l.acceptedCount, 1) >= l.maxAccepted {
		l.logger.Info().Int64("total", l.maxAccepted).Msg("reached requested total, stopping")
		l.stopOnce.Do(func() { close(l.stopChan) })
	}
	return nil
}

// accept applies the five-filter acceptance check of §4.1: site enabled,
// namespace watched, content actually changed, not a bot edit, and a
// rev_len over 500.
func (l *Listener) accept(e models.RevisionCreateEvent) (reason string, ok bool) {
	site, enabled := l.cfg.SiteConfig(e.Meta.Domain)
	if !enabled || !site.Enabled {
		return "site_disabled", false
	}
	if !containsInt(site.Namespaces, e.PageNamespace) {
		return "namespace", false
	}
	if !e.RevContentChanged {
		return "no_content_change", false
	}
	if e.Performer.IsBot {
		return "bot", false
	}
	if e.RevLen <= 500 {
		return "too_short", false
	}
	return "", true
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
