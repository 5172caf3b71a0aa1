package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/grailbio/base/errors"

	"github.com/dreamware/isc/internal/isc"
)

// CategoryISC is the service category of nodes that run in-storage
// computations.
const CategoryISC = "iscs"

// NodeInfo describes a registered service.
type NodeInfo struct {
	ID       string `json:"id"`
	Addr     string `json:"addr"`
	Category string `json:"category"`
}

type RegisterRequest struct {
	Node NodeInfo `json:"node"`
}

type BroadcastRequest struct {
	Path    string          `json:"path"`
	Payload json.RawMessage `json:"payload"`
}

// NextServiceResponse is the answer of the catalog walk endpoint.
type NextServiceResponse struct {
	Service NodeInfo `json:"service"`
}

// ExecRequest asks a node to run an in-storage function.
type ExecRequest struct {
	Component isc.ComponentID `json:"component"`
	Object    string          `json:"object"`
	Input     []byte          `json:"input"`
	ReplyCap  int             `json:"reply_cap"`
}

// ExecResponse carries a function's reply. A non-zero Status means the
// function failed on the node and Payload is empty.
type ExecResponse struct {
	Status  int    `json:"status"`
	Payload []byte `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

// StatusError is returned by the JSON helpers for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %s: %d", e.URL, e.Code)
}

// IsNotFound tells whether err is a 404 from a peer.
func IsNotFound(err error) bool {
	var se *StatusError
	return goerrors.As(err, &se) && se.Code == http.StatusNotFound
}

func PostJSON(ctx context.Context, url string, body any, out any) error {
	return doJSON(ctx, http.MethodPost, url, body, out)
}

func PutJSON(ctx context.Context, url string, body any, out any) error {
	return doJSON(ctx, http.MethodPut, url, body, out)
}

func GetJSON(ctx context.Context, url string, out any) error {
	return doJSON(ctx, http.MethodGet, url, nil, out)
}

// PutBytes uploads raw bytes.
func PutBytes(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	return send(req, nil)
}

func doJSON(ctx context.Context, method, url string, body any, out any) error {
	var reqBody []byte
	if body != nil {
		var err error
		if reqBody, err = json.Marshal(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return send(req, out)
}

func send(req *http.Request, out any) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return errors.E(errors.Net, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &StatusError{URL: req.URL.String(), Code: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
