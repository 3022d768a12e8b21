// Package ingest consumes the Kafka topic stream publishes to and writes
// each accepted revision into the diffs table as StatusUnsubmitted
// (§4.1 handoff into §6.1), decoupling the SSE listener's throughput from
// the database writer the same way the teacher's kafka consumer decouples
// ingestion from processing.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/copypatrol/copypatrol-go/internal/models"
	"github.com/copypatrol/copypatrol-go/internal/obsv"
	"github.com/copypatrol/copypatrol-go/internal/store"
)

// Consumer reads revision-create events off Kafka and stores them.
type Consumer struct {
	reader *kafka.Reader
	store  *store.Store
	logger zerolog.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewConsumer builds a Consumer reading brokers/topic under groupID.
func NewConsumer(brokers []string, topic, groupID string, st *store.Store, logger zerolog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		CommitInterval: time.Second,
		MaxWait:        500 * time.Millisecond,
	})
	return &Consumer{
		reader:   reader,
		store:    st,
		logger:   logger.With().Str("component", "ingest").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start begins consuming in the background.
func (c *Consumer) Start() {
	c.wg.Add(1)
	go c.run()
}

// Stop signals the consume loop to exit and waits for it.
func (c *Consumer) Stop() error {
	close(c.stopChan)
	c.wg.Wait()
	return c.reader.Close()
}

func (c *Consumer) run() {
	defer c.wg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		<-c.stopChan
		cancel()
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Error().Err(err).Msg("fetch message failed")
			time.Sleep(time.Second)
			continue
		}

		if err := c.handle(ctx, msg); err != nil {
			c.logger.Error().Err(err).Msg("failed to handle message")
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error().Err(err).Msg("commit failed")
		}
	}
}

func (c *Consumer) handle(_ context.Context, msg kafka.Message) error {
	var e models.RevisionCreateEvent
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	d := &models.Diff{
		Project:       "wikipedia",
		Lang:          langFromDomain(e.Meta.Domain),
		PageNamespace: e.PageNamespace,
		PageTitle:     e.PageTitle,
		RevID:         e.RevID,
		RevParentID:   e.RevParentID,
		RevTimestamp:  time.Unix(e.RevTimestamp, 0).UTC(),
		RevUserText:   e.Performer.UserText,
	}

	if err := c.store.AddRevision(d); err != nil {
		if isDuplicateKey(err) {
			c.logger.Debug().Uint64("rev_id", e.RevID).Msg("revision already stored, skipping")
			return nil
		}
		return fmt.Errorf("add revision: %w", err)
	}
	obsv.StoredDiffsTotal.WithLabelValues(e.Meta.Domain).Inc()
	return nil
}

func langFromDomain(domain string) string {
	lang, _, _ := strings.Cut(domain, ".")
	return lang
}

func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
