package ingest

import (
	"context"
	"log"
	"time"

	"github.com/pkg/errors"

	"github.com/nodescrypt/mempool-sentinel/classifier"
	"github.com/nodescrypt/mempool-sentinel/domain"
	"github.com/nodescrypt/mempool-sentinel/features"
)

type KafkaClient interface {
	PollObservations(ctx context.Context) ([]domain.TransactionObservation, error)
	Commit(ctx context.Context) error
	AllowRebalance()
}

type Aggregator interface {
	features.Context
	Record(obs domain.TransactionObservation, spamScore float64)
}

type Blacklist interface {
	IsBlacklisted(ctx context.Context, sender string) bool
}

// Processor records every polled observation into the aggregator, tagged
// with the ingest time spam score. It never calls the remote classifier so
// bursts cannot back up the stream.
type Processor struct {
	kafkaClient KafkaClient
	aggregator  Aggregator
	heuristic   *classifier.Heuristic
	blacklist   Blacklist
}

func NewProcessor(kafkaClient KafkaClient, aggregator Aggregator, heuristic *classifier.Heuristic, blacklist Blacklist) *Processor {
	return &Processor{
		kafkaClient: kafkaClient,
		aggregator:  aggregator,
		heuristic:   heuristic,
		blacklist:   blacklist,
	}
}

func (p *Processor) Consume() error {
	for {
		count, err := p.consumeBatch(context.Background())
		if err != nil {
			// if there is an error consuming we abort. We need to fix the error before trying again.
			log.Printf("Error consuming batch: %v", err)
			return errors.Wrap(err, "consuming batch")
		} else if count > 0 {
			log.Printf("Processed [%d] observations.", count)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func (p *Processor) consumeBatch(ctx context.Context) (int, error) {
	// get messages
	defer p.kafkaClient.AllowRebalance()
	observations, err := p.kafkaClient.PollObservations(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "poll observations")
	}

	for _, obs := range observations {
		p.record(ctx, obs)
	}

	// commit
	err = p.kafkaClient.Commit(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "committing batch")
	}
	return len(observations), nil
}

func (p *Processor) record(ctx context.Context, obs domain.TransactionObservation) {
	spamScore := p.heuristic.Predict(features.Extract(obs, p.aggregator)).Spam

	// a blacklisted sender is spam regardless of transaction shape
	if p.blacklist != nil && p.blacklist.IsBlacklisted(ctx, obs.Sender) {
		obs.Blacklisted = true
		spamScore = 1
	}

	p.aggregator.Record(obs, spamScore)
}
