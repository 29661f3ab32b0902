// Package kafka publishes decision events to the downstream event topic.
package kafka

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/pkg/errors"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/nodescrypt/mempool-sentinel/domain"
)

type KafkaClient interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

type Client struct {
	kcl KafkaClient
}

func NewClient(kafkaClient KafkaClient) *Client {
	return &Client{
		kcl: kafkaClient,
	}
}

// PublishDecisionEvents produces one record per event. Records are keyed by
// the decision sequence so downstream consumers keep per-partition order.
func (kc *Client) PublishDecisionEvents(ctx context.Context, events []domain.DecisionEvent) error {

	wg := sync.WaitGroup{}
	errorChannel := make(chan error, len(events))

	for _, event := range events {

		record, err := createEventRecord(event)
		if err != nil {
			log.Printf("Error while creating decision event record: %v", err)
			errorChannel <- err
			break
		}

		wg.Add(1)
		kc.kcl.Produce(ctx, record, func(_ *kgo.Record, err error) {
			defer wg.Done()
			if err != nil {
				log.Printf("Error while producing decision event record: %v", err)
				errorChannel <- err
				return
			}
			errorChannel <- nil
		})
	}

	wg.Wait()
	close(errorChannel)

	for err := range errorChannel {
		if err != nil {
			return errors.New("encountered errors while producing decision event records")
		}
	}

	return nil
}

func createEventRecord(event domain.DecisionEvent) (*kgo.Record, error) {

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshalling decision event to json: %w", err)
	}
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, event.Sequence)

	return &kgo.Record{
		Key:   key,
		Value: payload,
	}, nil

}
