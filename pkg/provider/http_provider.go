package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/aitweaker/tweakd/pkg/model"
)

// HTTPError is a non-2xx answer from the configuration store.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Status is the reply of GET /status.
type Status struct {
	Running bool   `json:"running"`
	Port    int    `json:"port"`
	IP      string `json:"ip"`
}

// HTTPProvider talks to a configuration store over HTTP.
type HTTPProvider struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPProvider(baseURL string, httpClient *http.Client) *HTTPProvider {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8000"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPProvider{baseURL: baseURL, httpClient: httpClient}
}

func (p *HTTPProvider) BaseURL() string {
	return p.baseURL
}

func (p *HTTPProvider) Fetch(ctx context.Context) (model.Configuration, error) {
	var cfg model.Configuration
	if err := p.doJSON(ctx, http.MethodGet, "/config", nil, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Persist posts {"updates": updates}. It is never retried: the sync engine
// owns the failure path.
func (p *HTTPProvider) Persist(ctx context.Context, updates json.RawMessage) error {
	body := map[string]json.RawMessage{"updates": updates}
	return p.doJSON(ctx, http.MethodPost, "/config", body, nil)
}

func (p *HTTPProvider) Status(ctx context.Context) (Status, error) {
	var st Status
	err := p.doJSON(ctx, http.MethodGet, "/status", nil, &st)
	return st, err
}

// Control starts or stops the interception proxy.
func (p *HTTPProvider) Control(ctx context.Context, action string, port int) error {
	body := map[string]any{"action": action, "port": port}
	return p.doJSON(ctx, http.MethodPost, "/control", body, nil)
}

// Cert copies the proxy CA certificate into w.
func (p *HTTPProvider) Cert(ctx context.Context, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/cert", nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readHTTPError(resp)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

func (p *HTTPProvider) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	log.Debugf("%s %s", method, req.URL)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readHTTPError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("unable to decode %s %s: %w", method, path, err)
	}
	return nil
}

func readHTTPError(resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var errPayload struct {
		Detail string `json:"detail"`
	}
	msg := strings.TrimSpace(string(payload))
	if json.Unmarshal(payload, &errPayload) == nil && errPayload.Detail != "" {
		msg = errPayload.Detail
	}
	return &HTTPError{StatusCode: resp.StatusCode, Message: msg}
}
