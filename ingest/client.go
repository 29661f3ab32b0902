// Package ingest consumes the transaction observation stream and feeds the
// mempool aggregator.
package ingest

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/pkg/errors"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/nodescrypt/mempool-sentinel/domain"
	"github.com/nodescrypt/mempool-sentinel/metrics"
)

type Client struct {
	kcl           *kgo.Client
	ingestMetrics *metrics.Metrics
}

func NewClient(kafkaClient *kgo.Client, metrics *metrics.Metrics) *Client {
	return &Client{
		kcl:           kafkaClient,
		ingestMetrics: metrics,
	}
}

// observationRecord is the wire shape produced by the network adapter.
// Every field is optional; missing values default rather than reject.
type observationRecord struct {
	Hash            string  `json:"hash"`
	Sender          string  `json:"sender"`
	Recipient       string  `json:"recipient"`
	Value           float64 `json:"value"`
	GasPrice        float64 `json:"gas_price"`
	DataSize        int     `json:"data_size"`
	Nonce           uint64  `json:"nonce"`
	FirstSeen       int64   `json:"first_seen"`
	ToIsContract    bool    `json:"to_is_contract"`
	IsTokenTransfer bool    `json:"is_token_transfer"`
}

func (c *Client) PollObservations(ctx context.Context) ([]domain.TransactionObservation, error) {
	fetches := c.kcl.PollRecords(ctx, 1000) // batch process max x messages in one run
	if errs := fetches.Errors(); len(errs) > 0 {
		// Only non-retryable errors are returned.
		// Errors are typically per partition.
		for _, err := range errs {
			log.Printf("Error: %v", err)
		}
		return nil, errors.New("fetching records")
	}

	var observations []domain.TransactionObservation
	iter := fetches.RecordIter()
	for !iter.Done() {
		record := iter.Next()
		obs, err := unmarshalObservation(record)
		if err != nil {
			// a record that is not even json carries no salvageable signal
			log.Printf("[WARN] skipping malformed observation record: %v", err)
			c.ingestMetrics.IncMalformedObservations()
			continue
		}
		observations = append(observations, obs)
		c.ingestMetrics.IncObservations()
	}

	return observations, nil
}

// AllowRebalance needs to be called after polling in case option BlockRebalanceOnPoll is set
func (c *Client) AllowRebalance() {
	c.kcl.AllowRebalance() // because of the kgo.BlockRebalanceOnPoll() option
}

func (c *Client) Commit(ctx context.Context) error {
	err := c.kcl.CommitUncommittedOffsets(ctx)
	if err != nil {
		return errors.Wrap(err, "committing offsets")
	}
	return nil
}

func unmarshalObservation(record *kgo.Record) (domain.TransactionObservation, error) {
	var raw observationRecord
	if err := json.Unmarshal(record.Value, &raw); err != nil {
		return domain.TransactionObservation{}, errors.Wrapf(err, "unmarshalling record %s", string(record.Value))
	}

	firstSeen := time.Now().UTC()
	if raw.FirstSeen > 0 {
		firstSeen = time.Unix(raw.FirstSeen, 0).UTC()
	}

	return domain.TransactionObservation{
		Hash:            raw.Hash,
		Sender:          raw.Sender,
		Recipient:       raw.Recipient,
		Value:           raw.Value,
		GasPrice:        raw.GasPrice,
		DataSize:        raw.DataSize,
		Nonce:           raw.Nonce,
		FirstSeen:       firstSeen,
		ToIsContract:    raw.ToIsContract,
		IsTokenTransfer: raw.IsTokenTransfer,
	}, nil
}
