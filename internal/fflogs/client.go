// Package fflogs talks to the FFLogs v2 GraphQL API: character lookup,
// recent reports, and the per-raid performance summary.
package fflogs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"raidbot/internal/metrics"
	logx "raidbot/pkg/logx"
)

var (
	ErrNotConfigured = errors.New("fflogs: client credentials not configured")
	ErrNotFound      = errors.New("fflogs: character not found")
)

// APIError carries GraphQL errors or a non-2xx status.
type APIError struct {
	Status   int
	Messages []string
}

func (e *APIError) Error() string {
	if len(e.Messages) > 0 {
		return "fflogs: " + strings.Join(e.Messages, "; ")
	}
	return fmt.Sprintf("fflogs: http status %d", e.Status)
}

type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	APIURL       string
	Region       string
	RatePerSec   int
	Timeout      time.Duration
}

// Client is safe for concurrent use. Tokens are fetched and refreshed by the
// oauth2 transport.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func NewClient(ctx context.Context, cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Region == "" {
		cfg.Region = "na"
	}
	c := &Client{cfg: cfg, log: log}
	if cfg.RatePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	if c.Enabled() {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		c.http = cc.Client(ctx)
		c.http.Timeout = cfg.Timeout
	}
	return c
}

func (c *Client) Enabled() bool {
	return c != nil && c.cfg.ClientID != "" && c.cfg.ClientSecret != "" && c.cfg.APIURL != ""
}

func (c *Client) Region() string { return c.cfg.Region }

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// query posts a GraphQL document and decodes data into out.
func (c *Client) query(ctx context.Context, q string, vars map[string]any, out any) (err error) {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.FFLogsDuration)
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.FFLogsRequests.WithLabelValues(result).Inc()
	}()

	body, err := json.Marshal(gqlRequest{Query: q, Variables: vars})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fflogs request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("fflogs read: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		c.log.Warn("fflogs http error", logx.Int("status", resp.StatusCode))
		return &APIError{Status: resp.StatusCode}
	}

	var gr gqlResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return fmt.Errorf("fflogs decode: %w", err)
	}
	if len(gr.Errors) > 0 {
		msgs := make([]string, len(gr.Errors))
		for i, e := range gr.Errors {
			msgs[i] = e.Message
		}
		return &APIError{Status: resp.StatusCode, Messages: msgs}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(gr.Data, out)
}
