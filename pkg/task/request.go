package task

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// TransportError is a fetch that never produced a usable body: a non-2xx
// status. Network-level failures surface as the underlying *url.Error.
type TransportError struct {
	Status int
	URL    string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream status %d from %s", e.Status, e.URL)
}

// ServerError is a 200 response whose JSON body carried the ArcGIS
// {error:{message}} envelope.
type ServerError struct {
	Code    int
	Message string
	Details []string
}

func (e *ServerError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("arcgis: %s (%s)", e.Message, strings.Join(e.Details, "; "))
	}
	return "arcgis: " + e.Message
}

type errEnvelope struct {
	Error *struct {
		Code    int      `json:"code"`
		Message string   `json:"message"`
		Details []string `json:"details"`
	} `json:"error"`
}

func checkEnvelope(body []byte) error {
	var env errEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil // not an envelope-bearing JSON object
	}
	if env.Error != nil {
		return &ServerError{Code: env.Error.Code, Message: env.Error.Message, Details: env.Error.Details}
	}
	return nil
}

// URL joins a service endpoint path with query parameters.
func URL(serviceURL, endpoint string, params url.Values) string {
	u := strings.TrimRight(serviceURL, "/")
	if endpoint != "" {
		u += "/" + strings.TrimLeft(endpoint, "/")
	}
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// GetJSON fetches rawURL, verifies the status and the ArcGIS error envelope,
// and unmarshals the body into out (out may be nil to only check).
func GetJSON(ctx context.Context, client *http.Client, rawURL string, out any) error {
	body, _, err := GetBytes(ctx, client, rawURL)
	if err != nil {
		return err
	}
	if err := checkEnvelope(body); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response from %s: %w", rawURL, err)
	}
	return nil
}

// GetBytes fetches rawURL and returns the raw body and content type. A JSON
// body is still probed for the error envelope so a "successful" export that
// actually failed server-side is surfaced as a ServerError.
func GetBytes(ctx context.Context, client *http.Client, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 8<<10))
		return nil, "", &TransportError{Status: resp.StatusCode, URL: rawURL}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}

	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "json") {
		if err := checkEnvelope(body); err != nil {
			return nil, ct, err
		}
	}
	return body, ct, nil
}
