package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodescrypt/mempool-sentinel/classifier"
	"github.com/nodescrypt/mempool-sentinel/domain"
)

type FakeKafkaClient struct {
	observations []domain.TransactionObservation
	committed    bool
	rebalanced   bool
}

func (f *FakeKafkaClient) PollObservations(_ context.Context) ([]domain.TransactionObservation, error) {
	return f.observations, nil
}

func (f *FakeKafkaClient) Commit(_ context.Context) error {
	f.committed = true
	return nil
}

func (f *FakeKafkaClient) AllowRebalance() {
	f.rebalanced = true
}

type FakeAggregator struct {
	recorded []domain.TransactionObservation
	scores   []float64
}

func (f *FakeAggregator) Record(obs domain.TransactionObservation, spamScore float64) {
	f.recorded = append(f.recorded, obs)
	f.scores = append(f.scores, spamScore)
}

func (f *FakeAggregator) PerSenderStats(string) (int, float64) { return 0, 0 }
func (f *FakeAggregator) LastKnownNonce(string) (uint64, bool) { return 0, false }

type FakeBlacklist struct {
	blacklisted map[string]bool
}

func (f *FakeBlacklist) IsBlacklisted(_ context.Context, sender string) bool {
	return f.blacklisted[sender]
}

func newTestProcessor(kafkaClient *FakeKafkaClient, aggregator *FakeAggregator, blacklist Blacklist) *Processor {
	heuristic := classifier.NewHeuristic(classifier.DefaultHeuristicConfig())
	return NewProcessor(kafkaClient, aggregator, heuristic, blacklist)
}

func TestProcessor_consumeBatch(t *testing.T) {
	kafkaClient := &FakeKafkaClient{
		observations: []domain.TransactionObservation{
			{Hash: "a", Sender: "0x1", GasPrice: 50, DataSize: 1, FirstSeen: time.Now()},
			{Hash: "b", Sender: "0x2", GasPrice: 0.5, DataSize: 1, FirstSeen: time.Now()},
		},
	}
	aggregator := &FakeAggregator{}
	processor := newTestProcessor(kafkaClient, aggregator, &FakeBlacklist{})

	count, err := processor.consumeBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.True(t, kafkaClient.committed)
	assert.True(t, kafkaClient.rebalanced)

	require.Len(t, aggregator.recorded, 2)
	// low fee rate transaction carries a spam signal, the normal one does not
	assert.Less(t, aggregator.scores[0], aggregator.scores[1])
}

func TestProcessor_consumeBatch_blacklistedSender(t *testing.T) {
	kafkaClient := &FakeKafkaClient{
		observations: []domain.TransactionObservation{
			{Hash: "a", Sender: "0xbad", GasPrice: 50, DataSize: 1, FirstSeen: time.Now()},
		},
	}
	aggregator := &FakeAggregator{}
	blacklist := &FakeBlacklist{blacklisted: map[string]bool{"0xbad": true}}
	processor := newTestProcessor(kafkaClient, aggregator, blacklist)

	_, err := processor.consumeBatch(context.Background())
	require.NoError(t, err)

	require.Len(t, aggregator.recorded, 1)
	assert.True(t, aggregator.recorded[0].Blacklisted)
	assert.InDelta(t, 1.0, aggregator.scores[0], 1e-9)
}

func TestProcessor_consumeBatch_empty(t *testing.T) {
	kafkaClient := &FakeKafkaClient{}
	aggregator := &FakeAggregator{}
	processor := newTestProcessor(kafkaClient, aggregator, &FakeBlacklist{})

	count, err := processor.consumeBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.True(t, kafkaClient.committed)
	assert.Empty(t, aggregator.recorded)
}

func TestProcessor_record_nilBlacklist(t *testing.T) {
	aggregator := &FakeAggregator{}
	processor := newTestProcessor(&FakeKafkaClient{}, aggregator, nil)

	processor.record(context.Background(), domain.TransactionObservation{Hash: "a", Sender: "0x1"})
	require.Len(t, aggregator.recorded, 1)
	assert.False(t, aggregator.recorded[0].Blacklisted)
}
