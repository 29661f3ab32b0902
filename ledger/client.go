// Package ledger submits incident records to the external audit ledger
// service over HTTP.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/nodescrypt/mempool-sentinel/audit"
)

// Client talks to the ledger service. The ledger deduplicates on incident
// id; a conflict response means the incident is already settled and is
// surfaced as audit.ErrDuplicate so the recorder can treat it as success.
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

func (c *Client) LogIncident(ctx context.Context, incident audit.Incident) error {
	body, err := json.Marshal(incident)
	if err != nil {
		return errors.Wrap(err, "marshalling incident")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/incidents", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "creating incident request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "calling ledger")
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusConflict:
		return audit.ErrDuplicate
	default:
		return errors.Errorf("ledger returned status [%d]", res.StatusCode)
	}
}
