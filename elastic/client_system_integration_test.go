//go:build !ci
// +build !ci

package elastic

import (
	"context"
	"crypto/tls"
	"flag"
	"log"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/ardanlabs/conf"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"

	"github.com/nodescrypt/mempool-sentinel/domain"
)

var (
	elasticClient *Client
)

func TestElasticClient_bulkIndexDecisionEvents(t *testing.T) {
	events := []domain.DecisionEvent{
		{
			Sequence: 1,
			State: domain.StateVector{
				MempoolTxCount: 5,
				AvgFeeRate:     10.8,
				SpamTxRatio:    0.8,
			},
			Action:       domain.ActionDeprioritizeSpam,
			RiskScore:    40,
			ModelVersion: "rules-v1",
			Cause:        domain.CausePolicy,
			Timestamp:    time.Now().UTC(),
		},
		{
			Sequence:     2,
			Action:       domain.ActionDoNothing,
			RiskScore:    5,
			ModelVersion: "rules-v1",
			Cause:        domain.CausePolicy,
			Timestamp:    time.Now().UTC(),
		},
	}

	err := elasticClient.BulkIndex(context.Background(), events)
	require.NoError(t, err)
}

func TestMain(m *testing.M) {
	setup()
	// Parse args and run
	flag.Parse()
	exitCode := m.Run()
	// Exit
	os.Exit(exitCode)
}

func setup() {
	const envPrefix = "MEMPOOL_SENTINEL"
	err := godotenv.Load("../.env.local")
	if err != nil {
		log.Printf("[WARN] no env file found")
	}
	var cfg struct {
		Elastic struct {
			Addresses []string `conf:"default:https://localhost:9200"`
			Username  string   `conf:"default:sentinel-ingestion"`
			Password  string   `conf:"optional,mask"`
			IndexName string   `conf:"default:sentinel-decision-events-alias"`
		}
	}
	err = conf.Parse(os.Args[1:], envPrefix, &cfg)
	if err != nil {
		log.Fatalf("error getting config: %v", err)
	}
	if cfg.Elastic.Password == "" {
		log.Printf("WARNING: no password configured")
	}

	esClient, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Elastic.Addresses,
		Username:  cfg.Elastic.Username,
		Password:  cfg.Elastic.Password,
		Transport: &http.Transport{
			ResponseHeaderTimeout: time.Second,
			TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
		},
	})
	if err != nil {
		log.Fatalf("error creating elastic client: %v", err)
	}
	elasticClient = NewClient(esClient, cfg.Elastic.IndexName)
}
