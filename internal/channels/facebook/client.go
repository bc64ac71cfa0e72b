package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/norrbit/leadbridge/pkg/logging"
)

const (
	defaultGraphAPIBase = "https://graph.facebook.com/v18.0"
	defaultHTTPTimeout  = 10 * time.Second
)

// Client fetches lead details from the Meta Graph API.
type Client struct {
	accessToken  string
	appSecret    string
	graphAPIBase string
	httpClient   *http.Client
	logger       *logging.Logger
}

// NewClient creates a new Graph API client.
func NewClient(accessToken, appSecret string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		accessToken:  accessToken,
		appSecret:    appSecret,
		graphAPIBase: defaultGraphAPIBase,
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
		logger:       logger,
	}
}

// SetGraphAPIBase overrides the Graph API base URL (useful for testing).
func (c *Client) SetGraphAPIBase(base string) {
	c.graphAPIBase = base
}

// SetTimeout overrides the HTTP client timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.httpClient.Timeout = d
}

// FetchLeadData retrieves the answers for a lead. It returns nil on any
// failure: missing credentials, transport errors, non-success status, or an
// unparseable body. A nil result means the base lead record stands without
// enrichment; it is never fatal to the batch.
func (c *Client) FetchLeadData(ctx context.Context, leadID string) *LeadData {
	if c.accessToken == "" || c.appSecret == "" {
		c.logger.Warn("facebook: graph credentials not configured, skipping lead fetch", "lead_id", leadID)
		return nil
	}

	// appsecret_proof ties the request to our app secret as replay protection.
	q := url.Values{}
	q.Set("access_token", c.accessToken)
	q.Set("appsecret_proof", AppSecretProof(c.appSecret, c.accessToken))
	reqURL := fmt.Sprintf("%s/%s?%s", c.graphAPIBase, url.PathEscape(leadID), q.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		c.logger.Error("facebook: create lead request", "lead_id", leadID, "error", err)
		return nil
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("facebook: fetch lead", "lead_id", leadID, "error", err)
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("facebook: read lead response", "lead_id", leadID, "error", err)
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error *GraphError `json:"error"`
		}
		_ = json.Unmarshal(body, &apiErr)
		if apiErr.Error != nil {
			c.logger.Error("facebook: graph API error",
				"lead_id", leadID,
				"status", resp.StatusCode,
				"code", apiErr.Error.Code,
				"message", apiErr.Error.Message,
			)
		} else {
			c.logger.Error("facebook: unexpected graph status", "lead_id", leadID, "status", resp.StatusCode)
		}
		return nil
	}

	var lead LeadData
	if err := json.Unmarshal(body, &lead); err != nil {
		c.logger.Error("facebook: unmarshal lead response", "lead_id", leadID, "error", err)
		return nil
	}

	return &lead
}
