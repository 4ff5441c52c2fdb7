package mal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amaumene/malarr/internal/config"
	"github.com/cenkalti/backoff/v4"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const (
	defaultBaseURL  = "https://api.myanimelist.net/v2"
	defaultTokenURL = "https://myanimelist.net/v1/oauth2/token"

	// throttleRetries bounds how often a 429 is retried before the call
	// fails with ErrRateLimited.
	throttleRetries = 3
)

// Error taxonomy surfaced to the sync engine. Everything the transport can do
// wrong collapses into one of these three.
var (
	ErrUnauthenticated = errors.New("mal: no usable credential")
	ErrRateLimited     = errors.New("mal: rate limited")
	ErrUnavailable     = errors.New("mal: service unavailable")
)

// errRetry asks the retry loop to re-send the request, used after a
// successful token refresh.
var errRetry = errors.New("mal: retry request")

// Client handles communication with the MAL API v2
type Client struct {
	clientID     string
	clientSecret string
	baseURL      string
	tokenURL     string
	tokenStore   TokenStore
	httpClient   *http.Client
	gate         *pacer
	backoffBase  time.Duration
	details      *cache.Cache
	logger       *logrus.Logger
}

// NewClient creates a new MAL API client
func NewClient(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	tokenStore, err := NewFileTokenStore(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	return &Client{
		clientID:     cfg.MALClientID,
		clientSecret: cfg.MALClientSecret,
		baseURL:      defaultBaseURL,
		tokenURL:     defaultTokenURL,
		tokenStore:   tokenStore,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		gate:         newPacer(cfg.RequestInterval),
		backoffBase:  500 * time.Millisecond,
		details:      cache.New(6*time.Hour, time.Hour),
		logger:       logger,
	}, nil
}

// doRequest performs one authenticated API call. On a 401 the token is
// refreshed at most once and the request re-sent exactly once; a second 401
// is terminal for the call. A 429 is retried with exponential backoff up to
// throttleRetries times. Transport failures and timeouts map to
// ErrUnavailable without retry.
func (c *Client) doRequest(ctx context.Context, method, path string, form url.Values, result interface{}) error {
	token, err := c.tokenStore.GetToken()
	if err != nil {
		return ErrUnauthenticated
	}

	refreshed := false

	operation := func() error {
		code, sendErr := c.send(ctx, method, path, form, token.AccessToken, result)
		if sendErr != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrUnavailable, sendErr))
		}

		switch {
		case code >= 200 && code < 300:
			return nil
		case code == http.StatusUnauthorized:
			if refreshed {
				return backoff.Permanent(ErrUnauthenticated)
			}
			refreshed = true
			if rerr := c.RefreshToken(ctx); rerr != nil {
				c.logger.WithError(rerr).Debug("Token refresh failed")
				return backoff.Permanent(ErrUnauthenticated)
			}
			if token, err = c.tokenStore.GetToken(); err != nil {
				return backoff.Permanent(ErrUnauthenticated)
			}
			return errRetry
		case code == http.StatusTooManyRequests:
			c.logger.WithField("path", path).Warn("MAL throttling, backing off")
			return ErrRateLimited
		default:
			return backoff.Permanent(fmt.Errorf("%w: unexpected status %d", ErrUnavailable, code))
		}
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.backoffBase
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, throttleRetries), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		if errors.Is(err, errRetry) {
			// retries exhausted before the refreshed request went out
			return ErrUnavailable
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return err
	}
	return nil
}

// send performs one HTTP round-trip behind the shared rate gate. It returns
// the status code; non-2xx bodies are drained, 2xx bodies are decoded into
// result when given.
func (c *Client) send(ctx context.Context, method, path string, form url.Values, accessToken string, result interface{}) (int, error) {
	if err := c.gate.wait(ctx); err != nil {
		return 0, err
	}

	fullURL := path
	if !strings.HasPrefix(path, "http") {
		fullURL = c.baseURL + path
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	c.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    fullURL,
	}).Debug("Making MAL API request")

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return 0, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return resp.StatusCode, nil
}
