// Package elastic indexes decision events for downstream search and
// analytics.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"runtime"
	"strconv"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/pkg/errors"

	"github.com/nodescrypt/mempool-sentinel/domain"
)

type Client struct {
	esClient  *elasticsearch.Client
	indexName string
}

func NewClient(esClient *elasticsearch.Client, indexName string) *Client {
	return &Client{
		esClient:  esClient,
		indexName: indexName,
	}
}

// BulkIndex writes decision events keyed by sequence number. Re-indexing the
// same sequence replaces the document, so republishing after a retry is safe.
func (c *Client) BulkIndex(ctx context.Context, events []domain.DecisionEvent) error {
	start := time.Now().UnixMilli()
	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Index:      c.indexName,
		Client:     c.esClient,
		NumWorkers: min(runtime.NumCPU(), 8),
	})
	if err != nil {
		return errors.Wrap(err, "Error creating bulk indexer")
	}

	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return errors.Wrapf(err, "marshalling decision event [%d]", event.Sequence)
		}
		documentID := strconv.FormatUint(event.Sequence, 10)

		item := esutil.BulkIndexerItem{
			Action:       "index", // creates or replaces
			DocumentID:   documentID,
			RequireAlias: true,
			Body:         bytes.NewReader(payload),
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				msg := "Error indexing decision event"
				if err != nil {
					log.Printf("%s [%s]: [%s]", msg, documentID, err)
				} else {
					log.Printf("%s [%s]: [%s: %s]", msg, documentID, res.Error.Type, res.Error.Reason)
				}
			},
		}
		if err := bi.Add(ctx, item); err != nil {
			return errors.Wrap(err, "Error adding document to bulk indexer")
		}
	}

	err = bi.Close(ctx)
	if err != nil {
		return errors.Wrap(err, "Error closing bulk indexer")
	}

	biStats := bi.Stats()
	end := time.Now().UnixMilli()
	if biStats.NumFailed > 0 {
		return errors.Errorf("%d errors indexing [%d] decision events",
			biStats.NumFailed,
			biStats.NumFlushed,
		)
	}
	log.Printf("Indexed %d decision events (%d bytes, %d requests) in %dms.",
		biStats.NumFlushed,
		biStats.FlushedBytes,
		biStats.NumRequests,
		end-start,
	)
	return nil
}
