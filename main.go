package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kprom"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nodescrypt/mempool-sentinel/api"
	"github.com/nodescrypt/mempool-sentinel/audit"
	"github.com/nodescrypt/mempool-sentinel/classifier"
	"github.com/nodescrypt/mempool-sentinel/db"
	"github.com/nodescrypt/mempool-sentinel/domain"
	sentinelelastic "github.com/nodescrypt/mempool-sentinel/elastic"
	"github.com/nodescrypt/mempool-sentinel/ingest"
	"github.com/nodescrypt/mempool-sentinel/intel"
	sentinelkafka "github.com/nodescrypt/mempool-sentinel/kafka"
	"github.com/nodescrypt/mempool-sentinel/ledger"
	"github.com/nodescrypt/mempool-sentinel/loop"
	"github.com/nodescrypt/mempool-sentinel/mempool"
	"github.com/nodescrypt/mempool-sentinel/metrics"
	"github.com/nodescrypt/mempool-sentinel/mitigation"
	"github.com/nodescrypt/mempool-sentinel/monitor"
	"github.com/nodescrypt/mempool-sentinel/policy"
)

const prefix = "MEMPOOL_SENTINEL"

func main() {
	if err := run(); err != nil {
		log.Fatalf("main: exited with error: %s", err.Error())
	}
}

func run() error {
	log.SetOutput(os.Stdout) // default is stderr

	config := zap.NewProductionConfig()
	// this is just for sugar, to display a readable date instead of an epoch time
	config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime)

	logger, err := config.Build()
	if err != nil {
		return fmt.Errorf("creating logger: %v", err)
	}
	defer logger.Sync()
	sLogger := logger.Sugar()

	var cfg struct {
		Server struct {
			HttpListenAddr   string `conf:"default:0.0.0.0:8080"`
			MetricsPort      int    `conf:"default:9999"`
			MetricsNamespace string `conf:"default:mempool_sentinel"`
		}
		InternalStoreFolder string `conf:"default:store"`
		Broker              struct {
			BootstrapServers []string `conf:"default:localhost:9092"`
			ConsumeTopic     string   `conf:"default:mempool-observations"`
			ConsumerGroup    string   `conf:"default:mempool-sentinel"`
			PublishTopic     string   `conf:"default:sentinel-decision-events"`
		}
		Elastic struct {
			Enabled     bool     `conf:"default:false"`
			Addresses   []string `conf:"default:https://localhost:9200"`
			Username    string   `conf:"default:sentinel-ingestion"`
			Password    string   `conf:"optional,mask"`
			IndexName   string   `conf:"default:sentinel-decision-events-alias"`
			Certificate string   `conf:"default:http_ca.crt"`
			MaxRetries  int      `conf:"default:15"`
		}
		Redis struct {
			Address      string        `conf:"optional"`
			BlacklistKey string        `conf:"default:sentinel:blacklist"`
			CacheTTL     time.Duration `conf:"default:1m"`
			Timeout      time.Duration `conf:"default:500ms"`
		}
		Classifier struct {
			BaseUrl       string        `conf:"default:http://localhost:8000"`
			Timeout       time.Duration `conf:"default:100ms"`
			SpamThreshold float64       `conf:"default:0.7"`
		}
		Policy struct {
			ModelArtifactPath string `conf:"optional"`
		}
		Ledger struct {
			BaseUrl       string        `conf:"default:http://localhost:8090"`
			SubmitTimeout time.Duration `conf:"default:10s"`
			RetryInterval time.Duration `conf:"default:2s"`
			MaxBackoff    time.Duration `conf:"default:1m"`
			BatchSize     int           `conf:"default:16"`
		}
		Mempool struct {
			WindowSpan      time.Duration `conf:"default:30s"`
			MaxEntries      int           `conf:"default:10000"`
			SpamThreshold   float64       `conf:"default:0.7"`
			CongestionScale float64       `conf:"default:100"`
			NonceCacheSize  int           `conf:"default:4096"`
		}
		Loop struct {
			CycleInterval       time.Duration `conf:"default:2s"`
			SampleSize          int           `conf:"default:32"`
			RiskCongestionScale float64       `conf:"default:100000000"`
			Disabled            bool          `conf:"default:false"`
		}
		Monitor struct {
			WindowSize             int     `conf:"default:50"`
			SpamRatioThreshold     float64 `conf:"default:0.6"`
			FalsePositiveThreshold float64 `conf:"default:0.25"`
			RewardProxyThreshold   float64 `conf:"default:-50"`
			RiskScoreThreshold     float64 `conf:"default:90"`
		}
	}

	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch {
		case errors.Is(err, conf.ErrHelpWanted):
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return errors.Wrap(err, "generating config usage")
			}
			fmt.Println(usage)
			return nil
		case errors.Is(err, conf.ErrVersionWanted):
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return errors.Wrap(err, "generating config version")
			}
			fmt.Println(version)
			return nil
		}
		return errors.Wrap(err, "parsing config")
	}

	out, err := conf.String(&cfg)
	if err != nil {
		return errors.Wrap(err, "generating config for output")
	}
	log.Printf("main: Config :\n%v\n", out)

	m := metrics.NewMetrics(cfg.Server.MetricsNamespace)

	store, err := db.NewPebbleStore(cfg.InternalStoreFolder)
	if err != nil {
		return errors.Wrap(err, "creating internal store")
	}
	defer store.Close()

	// ingestion side kafka client
	kafkaMetrics := kprom.NewMetrics(cfg.Server.MetricsNamespace,
		kprom.Registerer(prometheus.DefaultRegisterer),
		kprom.Gatherer(prometheus.DefaultGatherer))
	consumeClient, err := kgo.NewClient(
		kgo.WithHooks(kafkaMetrics),
		kgo.SeedBrokers(cfg.Broker.BootstrapServers...),
		kgo.ConsumeTopics(cfg.Broker.ConsumeTopic),
		kgo.ConsumerGroup(cfg.Broker.ConsumerGroup),
		kgo.BlockRebalanceOnPoll(),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return errors.Wrap(err, "creating kafka consume client")
	}
	defer consumeClient.Close()

	// publishing side kafka client
	produceClient, err := kgo.NewClient(
		kgo.DefaultProduceTopic(cfg.Broker.PublishTopic),
		kgo.SeedBrokers(cfg.Broker.BootstrapServers...),
		kgo.ProducerBatchCompression(kgo.ZstdCompression()),
	)
	if err != nil {
		return errors.Wrap(err, "creating kafka produce client")
	}
	defer produceClient.Close()
	eventProducer := sentinelkafka.NewClient(produceClient)

	sinks := []loop.EventSink{eventProducer}
	if cfg.Elastic.Enabled {
		cert, err := os.ReadFile(cfg.Elastic.Certificate)
		if err != nil {
			log.Printf("[WARN] main: could not read elastic certificate: %v", err)
		}
		esClient, err := elasticsearch.NewClient(elasticsearch.Config{
			Addresses:     cfg.Elastic.Addresses,
			Username:      cfg.Elastic.Username,
			Password:      cfg.Elastic.Password,
			CACert:        cert,
			RetryOnStatus: []int{502, 503, 504, 429},
			MaxRetries:    cfg.Elastic.MaxRetries,
			RetryBackoff:  calculateBackoff(),
		})
		if err != nil {
			return errors.Wrap(err, "creating elastic client")
		}
		sinks = append(sinks, &elasticSink{client: sentinelelastic.NewClient(esClient, cfg.Elastic.IndexName)})
	}

	var blacklist ingest.Blacklist
	if cfg.Redis.Address != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Address})
		defer rdb.Close()
		intelService := intel.NewService(rdb, cfg.Redis.BlacklistKey, cfg.Redis.CacheTTL, cfg.Redis.Timeout, sLogger)
		defer intelService.Close()
		blacklist = intelService
	} else {
		log.Printf("[WARN] main: no redis address configured, blacklist lookups disabled")
	}

	aggregator, err := mempool.NewAggregator(mempool.Config{
		WindowSpan:      cfg.Mempool.WindowSpan,
		MaxEntries:      cfg.Mempool.MaxEntries,
		SpamThreshold:   cfg.Mempool.SpamThreshold,
		CongestionScale: cfg.Mempool.CongestionScale,
		NonceCacheSize:  cfg.Mempool.NonceCacheSize,
	})
	if err != nil {
		return errors.Wrap(err, "creating mempool aggregator")
	}

	heuristic := classifier.NewHeuristic(classifier.DefaultHeuristicConfig())
	remote := classifier.NewClient(cfg.Classifier.BaseUrl, cfg.Classifier.Timeout)
	scorer, err := classifier.NewScorer(remote, heuristic, cfg.Classifier.Timeout, cfg.Classifier.SpamThreshold, m)
	if err != nil {
		return errors.Wrap(err, "creating scorer")
	}

	rulePolicy, err := policy.NewRulePolicy(policy.DefaultRuleConfig())
	if err != nil {
		return errors.Wrap(err, "creating rule policy")
	}
	var modelPolicy policy.DecisionPolicy
	if cfg.Policy.ModelArtifactPath != "" {
		loaded, err := policy.LoadModelPolicy(cfg.Policy.ModelArtifactPath)
		if err != nil {
			return errors.Wrap(err, "loading policy artifact")
		}
		modelPolicy = loaded
	}
	selector := policy.NewSelector(modelPolicy, rulePolicy)

	state := mitigation.NewState()
	executor, err := mitigation.NewExecutor(mitigation.DefaultConfig(), state)
	if err != nil {
		return errors.Wrap(err, "creating mitigation executor")
	}

	collector := monitor.NewCollector(cfg.Monitor.WindowSize)
	detector, err := monitor.NewDriftDetector(monitor.Thresholds{
		SpamRatio:     cfg.Monitor.SpamRatioThreshold,
		FalsePositive: cfg.Monitor.FalsePositiveThreshold,
		RewardProxy:   cfg.Monitor.RewardProxyThreshold,
		RiskScore:     cfg.Monitor.RiskScoreThreshold,
	})
	if err != nil {
		return errors.Wrap(err, "creating drift detector")
	}
	healer := monitor.NewHealer(scorer, selector, sLogger)

	ledgerClient := ledger.NewClient(cfg.Ledger.BaseUrl, cfg.Ledger.SubmitTimeout)
	recorder, err := audit.NewRecorder(audit.Config{
		RetryInterval: cfg.Ledger.RetryInterval,
		MaxBackoff:    cfg.Ledger.MaxBackoff,
		BatchSize:     cfg.Ledger.BatchSize,
		SubmitTimeout: cfg.Ledger.SubmitTimeout,
	}, store, ledgerClient, m, sLogger)
	if err != nil {
		return errors.Wrap(err, "creating incident recorder")
	}

	runner, err := loop.NewRunner(loop.Config{
		CycleInterval:       cfg.Loop.CycleInterval,
		SampleSize:          cfg.Loop.SampleSize,
		RiskCongestionScale: cfg.Loop.RiskCongestionScale,
	}, aggregator, scorer, selector, collector, detector, healer, executor,
		store, recorder, sinks, m, sLogger)
	if err != nil {
		return errors.Wrap(err, "creating decision loop")
	}
	runner.SetDisabled(cfg.Loop.Disabled)

	processor := ingest.NewProcessor(ingest.NewClient(consumeClient, m), aggregator, heuristic, blacklist)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go recorder.Start(ctx)
	go runner.Start(ctx)

	procError := make(chan error, 1)
	go func() {
		procError <- processor.Consume()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	handler := api.NewHandler(state, aggregator, healer, runner)

	serverError := make(chan error, 1)
	go func() {
		log.Printf("main: Starting http endpoint on [%s].", cfg.Server.HttpListenAddr)
		mux := http.NewServeMux()
		mux.HandleFunc("/health", handler.GetHealth)
		mux.HandleFunc("/v1/status", handler.GetStatus)
		mux.HandleFunc("/v1/admin/mitigation", handler.PostMitigation)
		serverError <- http.ListenAndServe(cfg.Server.HttpListenAddr, mux)
	}()

	metricsError := make(chan error, 1)
	go func() {
		log.Printf("main: Starting metrics endpoint on port [%d].", cfg.Server.MetricsPort)
		http.Handle("/metrics", promhttp.Handler())
		metricsError <- http.ListenAndServe(fmt.Sprintf(":%d", cfg.Server.MetricsPort), nil)
	}()

	log.Println("main: Service started.")

	for {
		select {
		case <-shutdown:
			log.Println("main: Received shutdown signal, shutting down...")
			return nil
		case err := <-procError:
			return fmt.Errorf("[ERROR] processing error: %v", err)
		case err := <-serverError:
			return fmt.Errorf("[ERROR] starting server: %v", err)
		case err := <-metricsError:
			return fmt.Errorf("[ERROR] starting metrics server: %v", err)
		}
	}
}

// calculateBackoff needs retry number because of multi threading
func calculateBackoff() func(i int) time.Duration {
	return func(i int) time.Duration {
		var d time.Duration
		if i < 10 {
			d = time.Second*time.Duration(i) + randomMillis()
		} else {
			d = time.Second*30 + randomMillis()
		}
		log.Printf("[WARN] elasticsearch client retry [%d] in %v.", i, d)
		return d
	}
}

func randomMillis() time.Duration {
	return time.Duration(rand.Intn(1000)) * time.Millisecond
}

// elasticSink adapts the bulk indexer to the loop's sink boundary.
type elasticSink struct {
	client *sentinelelastic.Client
}

func (s *elasticSink) PublishDecisionEvents(ctx context.Context, events []domain.DecisionEvent) error {
	return s.client.BulkIndex(ctx, events)
}
