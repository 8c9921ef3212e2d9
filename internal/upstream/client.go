// Package upstream talks to the external user directory over JSON/HTTP.
//
// The base URL is joined to resource paths by plain concatenation, so it must
// end with a slash ("https://reqres.in/api/").
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/sakif/user-avatar-service/internal/apperror"
	"github.com/sakif/user-avatar-service/internal/model"
)

// Config describes how to reach the directory.
// ClientID, ClientSecret and TokenURL are optional; when all three are set
// every request carries an OAuth2 client-credentials token.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	ClientID     string
	ClientSecret string
	TokenURL     string
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client whose transport is traced with OpenTelemetry.
func New(cfg Config) *Client {
	base := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	httpClient := base
	if cfg.ClientID != "" && cfg.ClientSecret != "" && cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		// Token requests go through the same traced transport.
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		httpClient = cc.Client(ctx)
		httpClient.Timeout = cfg.Timeout
	}

	return &Client{baseURL: cfg.BaseURL, http: httpClient}
}

// Create posts the payload to {base}users and returns the response body as-is.
// An empty body is returned as {}.
func (c *Client) Create(ctx context.Context, req *model.CreateUserRequest) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: encoding user: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, c.baseURL+"users", body)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(respBody) {
		return nil, apperror.Upstream(http.StatusBadGateway, "upstream returned invalid JSON", nil)
	}
	return json.RawMessage(respBody), nil
}

// fetchResponse is the envelope the directory wraps single users in.
type fetchResponse struct {
	Data *model.User `json:"data"`
}

// FetchByID loads {base}users/{id}. It returns (nil, nil) when the directory
// answers successfully but without a data object.
func (c *Client) FetchByID(ctx context.Context, id string) (*model.User, error) {
	respBody, err := c.do(ctx, http.MethodGet, c.baseURL+"users/"+id, nil)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil, nil
	}

	var resp fetchResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, apperror.Upstream(http.StatusBadGateway, "upstream returned invalid JSON", err)
	}
	return resp.Data, nil
}

// do sends one request and returns the body of a 2xx response.
// Any other status becomes an upstream error carrying that status; a
// transport failure becomes one with status 0.
func (c *Client) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("upstream: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperror.Upstream(0, err.Error(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperror.Upstream(0, err.Error(), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperror.Upstream(
			resp.StatusCode,
			fmt.Sprintf("Request failed with status code %d", resp.StatusCode),
			nil,
		)
	}

	return respBody, nil
}
