package platform

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

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"github.com/matthewjhunter/crier/internal/logging"
	"github.com/matthewjhunter/crier/internal/storage"
)

// ClientConfig is shared by the HTTP adapters.
type ClientConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration // per call; zero leaves the caller's deadline
	Logger     logging.Logger
}

// apiClient performs authenticated JSON calls for one platform. Calls go
// through a circuit breaker and are never retried here: a publish that may
// have reached the platform must not be sent twice.
type apiClient struct {
	platform string
	baseURL  string
	http     *http.Client
	creds    Credentials
	timeout  time.Duration
	executor failsafe.Executor[*http.Response]
}

//nolint:bodyclose // the executor's type parameter is the response, closed by the caller
func newAPIClient(platform string, creds Credentials, cfg ClientConfig) *apiClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	builder := circuitbreaker.NewBuilder[*http.Response]().
		WithFailureThresholdRatio(5, 10).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp != nil && (resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests)
		})
	if cfg.Logger != nil {
		builder = builder.OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			cfg.Logger.WithFields(logging.Fields{
				"platform":   platform,
				"from_state": stateName(event.OldState),
				"to_state":   stateName(event.NewState),
			}).Warn("circuit breaker state change")
		})
	}

	return &apiClient{
		platform: platform,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     httpClient,
		creds:    creds,
		timeout:  cfg.Timeout,
		executor: failsafe.With[*http.Response](builder.Build()),
	}
}

// credential returns the tenant's enabled credential or a credential_missing
// error.
func (c *apiClient) credential(ctx context.Context, tenantID string) (*storage.PlatformCredential, error) {
	cred, err := c.creds.GetCredential(ctx, tenantID, c.platform)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newError(c.platform, KindCredentialMissing, errors.New("no credential stored"))
	}
	if err != nil {
		return nil, newError(c.platform, KindTransient, fmt.Errorf("load credential: %w", err))
	}
	if !cred.Enabled {
		return nil, newError(c.platform, KindCredentialMissing, errors.New("credential disabled"))
	}
	if cred.AccessToken == "" {
		return nil, newError(c.platform, KindCredentialMissing, errors.New("empty access token"))
	}
	return cred, nil
}

// call sends method+path with an optional JSON body and decodes a 2xx JSON
// response into out. It returns the response headers and status for
// adapters that read ids from headers. A 404 is reported as status with a
// nil error when allowNotFound is set.
func (c *apiClient) call(ctx context.Context, token, method, path string, body, out any, headers map[string]string, allowNotFound bool) (int, http.Header, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return 0, nil, newError(c.platform, KindRejected, fmt.Errorf("encode request: %w", err))
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return c.http.Do(req)
	})
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return 0, nil, classifyTransport(c.platform, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, resp.Header, classifyTransport(c.platform, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode == http.StatusNotFound && allowNotFound {
		return resp.StatusCode, resp.Header, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, resp.Header, &Error{
			Platform:   c.platform,
			Kind:       classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Cause:      errors.New(apiMessage(data)),
		}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, resp.Header, newError(c.platform, KindTransient, fmt.Errorf("decode response: %w", err))
		}
	}
	return resp.StatusCode, resp.Header, nil
}

// apiMessage extracts a human-readable message from an error body.
func apiMessage(body []byte) string {
	var generic struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
		Title   string `json:"title"`
	}
	if json.Unmarshal(body, &generic) == nil {
		switch {
		case generic.Detail != "":
			return generic.Detail
		case generic.Message != "":
			return generic.Message
		case generic.Error != nil:
			return fmt.Sprint(generic.Error)
		case generic.Title != "":
			return generic.Title
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		msg = "empty response"
	}
	return msg
}

func stateName(s circuitbreaker.State) string {
	switch s {
	case circuitbreaker.ClosedState:
		return "closed"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	case circuitbreaker.OpenState:
		return "open"
	default:
		return "unknown"
	}
}
