//go:build e2e

package e2e_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// EnvServerURL names the variable holding the base URL of the server under test.
const EnvServerURL = "E2E_SERVER_URL"

// Default configuration values.
const (
	DefaultServerURL = "http://localhost:8080"
	DefaultTimeout   = 15 * time.Second
)

// e2eServerURL returns the base URL of the server under test.
func e2eServerURL() string {
	if val := os.Getenv(EnvServerURL); val != "" {
		return val
	}
	return DefaultServerURL
}

// skipIfServerUnavailable checks whether the server is reachable
// and skips the test if it is not.
func skipIfServerUnavailable(t *testing.T) {
	t.Helper()

	base := e2eServerURL()
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(base + "/health")
	if err != nil {
		t.Skipf("Server unavailable at %s: %v", base, err)
	}
	resp.Body.Close()
}

// newHTTPClient returns an *http.Client with a sensible timeout.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// item mirrors the server's item representation.
type item struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// response is a completed HTTP exchange.
type response struct {
	status int
	header http.Header
	body   []byte
}

// send performs an HTTP request. It returns an error rather than failing
// the test so it can be used from goroutines.
func send(client *http.Client, method, url string, payload any) (*response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return &response{status: resp.StatusCode, header: resp.Header, body: respBody}, nil
}

// doRequest performs an HTTP request and fails the test on transport errors.
func doRequest(t *testing.T, client *http.Client, method, url string, payload any) *response {
	t.Helper()

	resp, err := send(client, method, url, payload)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return resp
}

// createItem creates an item and returns the server's representation.
func createItem(t *testing.T, client *http.Client, base, name, description string) item {
	t.Helper()

	resp := doRequest(t, client, http.MethodPost, base+"/api/items",
		map[string]string{"name": name, "description": description})
	if resp.status != http.StatusCreated {
		t.Fatalf("createItem: expected 201, got %d. Body: %s", resp.status, resp.body)
	}

	var created item
	if err := json.Unmarshal(resp.body, &created); err != nil {
		t.Fatalf("createItem: failed to parse item: %v", err)
	}
	return created
}

// deleteItem removes an item, logging unexpected statuses.
func deleteItem(t *testing.T, client *http.Client, base string, id int) {
	t.Helper()

	resp, err := send(client, http.MethodDelete, fmt.Sprintf("%s/api/items/%d", base, id), nil)
	if err != nil {
		t.Logf("deleteItem cleanup: %v", err)
		return
	}
	if resp.status != http.StatusOK && resp.status != http.StatusNotFound {
		t.Logf("deleteItem cleanup: expected 200, got %d. Body: %s", resp.status, resp.body)
	}
}
