// Package classifier integrates the external risk model service and the
// deterministic heuristic that covers for it when it is slow or down.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/nodescrypt/mempool-sentinel/domain"
)

// Client calls the inference service over HTTP. Every call carries a hard
// timeout; the scorer falls back to the heuristic on any failure.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost:   10,
				ResponseHeaderTimeout: timeout,
			},
		},
	}
}

type predictRequest struct {
	FeeRate       float64 `json:"fee_rate"`
	Value         float64 `json:"value"`
	DataSize      int     `json:"data_size"`
	NonceGap      int64   `json:"nonce_gap"`
	SenderTxCount int     `json:"sender_tx_count"`
	SenderAvgFee  float64 `json:"sender_avg_fee"`
}

type predictResponse struct {
	SpamScore float64 `json:"spam_score"`
	MevScore  float64 `json:"mev_score"`
}

// Predict requests spam and mev scores for one feature vector. Scores are
// returned as-is; range validation is the scorer's job so that out of range
// model output is reported, not silently passed through.
func (c *Client) Predict(ctx context.Context, fv domain.FeatureVector) (domain.RiskScores, error) {
	body, err := json.Marshal(predictRequest{
		FeeRate:       fv.FeeRate,
		Value:         fv.NormalizedValue,
		DataSize:      fv.DataSize,
		NonceGap:      fv.NonceGap,
		SenderTxCount: fv.SenderTxCount,
		SenderAvgFee:  fv.SenderAvgFee,
	})
	if err != nil {
		return domain.RiskScores{}, errors.Wrap(err, "marshalling predict request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict/full", bytes.NewReader(body))
	if err != nil {
		return domain.RiskScores{}, errors.Wrap(err, "creating predict request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return domain.RiskScores{}, errors.Wrap(err, "calling classifier")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return domain.RiskScores{}, errors.Errorf("classifier returned status [%d]", res.StatusCode)
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return domain.RiskScores{}, errors.Wrap(err, "reading predict response")
	}

	var response predictResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return domain.RiskScores{}, errors.Wrap(err, "unmarshalling predict response")
	}

	return domain.RiskScores{Spam: response.SpamScore, Mev: response.MevScore}, nil
}

// Health checks the inference service availability.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return errors.Wrap(err, "creating health request")
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "calling classifier health endpoint")
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return errors.Errorf("classifier health returned status [%d]", res.StatusCode)
	}
	return nil
}
