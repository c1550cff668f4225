// Package transport defines the HTTP collaborator contract that
// provider/api depends on, plus a default net/http-backed implementation
// and the JSON-RPC 2.0 envelope helpers. It is the narrow seam between
// the provider core and the network.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single request/response round trip.
const DefaultTimeout = 30 * time.Second

// Transport performs a single request/response round trip against a JSON-RPC
// (or similar) HTTP backend and returns the raw response body. Backend-
// specific URL construction and auth headers are the caller's concern;
// Transport only moves bytes.
type Transport interface {
	Do(ctx context.Context, method, url string, body []byte, headers map[string]string) ([]byte, int, error)
}

// HTTPTransport is the default Transport, a thin wrapper around
// *http.Client with a fixed request timeout.
type HTTPTransport struct {
	Client *http.Client
}

// New constructs an HTTPTransport with DefaultTimeout.
func New() *HTTPTransport {
	return &HTTPTransport{Client: &http.Client{Timeout: DefaultTimeout}}
}

func (t *HTTPTransport) Do(ctx context.Context, method, url string, body []byte, headers map[string]string) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("transport: build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		if req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("transport: do: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("transport: read body: %w", err)
	}
	return data, resp.StatusCode, nil
}

// RPCRequest is the JSON-RPC 2.0 envelope used by provider/api.
type RPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// RPCResponse is the JSON-RPC 2.0 response envelope. Result is left as
// untyped JSON (map[string]any / []any / string / number) for jsonpath to
// navigate and coerce.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// EncodeRequest marshals a JSON-RPC request envelope.
func EncodeRequest(id int64, method string, params []any) ([]byte, error) {
	return json.Marshal(RPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
}

// DecodeResponse unmarshals a JSON-RPC response envelope and decodes its
// Result field into a generic any (map[string]any / []any / scalar),
// ready for jsonpath.Query.
func DecodeResponse(body []byte) (any, *RPCError, error) {
	var resp RPCResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, nil, fmt.Errorf("transport: decode envelope: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error, nil
	}
	if len(resp.Result) == 0 {
		return nil, nil, nil
	}
	var result any
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, nil, fmt.Errorf("transport: decode result: %w", err)
	}
	return result, nil, nil
}
