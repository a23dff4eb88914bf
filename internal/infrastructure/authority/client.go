package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jpillora/backoff"
	"github.com/sirupsen/logrus"

	"github.com/ueckoken/kagi/internal/core/domain/card"
	"github.com/ueckoken/kagi/internal/core/domain/verification"
	"github.com/ueckoken/kagi/internal/core/ports"
)

const verifyPath = "/api/card/verify"

// maxBodyBytes caps how much of a response is read; the verify answer is tiny.
const maxBodyBytes = 64 << 10

type Config struct {
	BaseURL     string
	APIKey      string
	MaxAttempts int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
}

// Client asks the card authority whether an IDm is registered.
type Client struct {
	endpoint    string
	apiKey      string
	maxAttempts int
	backoffMin  time.Duration
	backoffMax  time.Duration
	http        *http.Client
	metrics     ports.AccessMetrics
	logger      *logrus.Logger
}

type verifyRequest struct {
	IDm string `json:"idm"`
}

type verifyResponse struct {
	Verified *bool `json:"verified"`
}

// NewClient resolves the verify endpoint against cfg.BaseURL. A nil httpClient uses
// http.DefaultClient; per-request deadlines come from the caller's context.
func NewClient(cfg Config, httpClient *http.Client, metrics ports.AccessMetrics, logger *logrus.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid authority base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid authority base url %q", cfg.BaseURL)
	}
	ref, _ := url.Parse(verifyPath)
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = 100 * time.Millisecond
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = cfg.BackoffMin
	}
	return &Client{
		endpoint:    base.ResolveReference(ref).String(),
		apiKey:      cfg.APIKey,
		maxAttempts: cfg.MaxAttempts,
		backoffMin:  cfg.BackoffMin,
		backoffMax:  cfg.BackoffMax,
		http:        httpClient,
		metrics:     metrics,
		logger:      logger,
	}, nil
}

// Verify implements ports.CardVerifier. Only transport faults are retried; an answer
// from the authority, positive or not, is final.
func (c *Client) Verify(ctx context.Context, id card.IDm) verification.Result {
	b := &backoff.Backoff{
		Min:    c.backoffMin,
		Max:    c.backoffMax,
		Factor: 2,
		Jitter: true,
	}

	var res verification.Result
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		res = c.verifyOnce(ctx, id)
		if res.Status != verification.TransportFault || ctx.Err() != nil || attempt == c.maxAttempts {
			break
		}

		wait := b.Duration()
		if c.logger != nil {
			c.logger.WithFields(logrus.Fields{"attempt": attempt, "retry_in": wait.String()}).WithError(res.Err).Warn("card authority request failed; retrying")
		}
		select {
		case <-ctx.Done():
			return verification.NewTransportFault("cancelled", ctx.Err())
		case <-time.After(wait):
		}
	}
	return res
}

func (c *Client) verifyOnce(ctx context.Context, id card.IDm) verification.Result {
	start := time.Now()
	res := c.do(ctx, id)
	if c.metrics != nil {
		c.metrics.ObserveAuthorityRequest(string(res.Status), time.Since(start))
	}
	return res
}

func (c *Client) do(ctx context.Context, id card.IDm) verification.Result {
	payload, err := json.Marshal(verifyRequest{IDm: id.String()})
	if err != nil {
		return verification.NewAuthorityFault("encode_request", err)
	}

	// The authority reads the body of a GET; keep it that way for compatibility.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return verification.NewAuthorityFault("build_request", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		reason := "network"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		} else if errors.Is(err, context.Canceled) {
			reason = "cancelled"
		}
		return verification.NewTransportFault(reason, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return verification.NewTransportFault("read_body", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return decodeVerify(body)
	case resp.StatusCode == http.StatusBadRequest:
		return verification.NewDenied("bad_request")
	case resp.StatusCode == http.StatusForbidden:
		return verification.NewDenied("forbidden")
	case resp.StatusCode == http.StatusNotFound:
		return verification.NewDenied("not_found")
	case resp.StatusCode == http.StatusUnauthorized:
		return verification.NewAuthorityFault("unauthorized", fmt.Errorf("authority rejected api key: %s", resp.Status))
	default:
		return verification.NewAuthorityFault(fmt.Sprintf("status_%d", resp.StatusCode), fmt.Errorf("unexpected authority status: %s", resp.Status))
	}
}

func decodeVerify(body []byte) verification.Result {
	var vr verifyResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return verification.NewAuthorityFault("malformed_response", err)
	}
	if vr.Verified != nil && *vr.Verified {
		return verification.NewVerified(verification.SourceAuthority)
	}
	return verification.NewDenied("not_verified")
}
