package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"

	"github.com/diwise/hal-client/pkg/hal/errors"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Transport issues requests on behalf of a client. Implementations return
// an error for failed requests and for responses with an error status.
type Transport interface {
	Get(ctx context.Context, url string) (*Response, error)
	Post(ctx context.Context, url string, body []byte) (*Response, error)
	Patch(ctx context.Context, url string, body []byte) (*Response, error)
	Put(ctx context.Context, url string, body []byte) (*Response, error)
	Delete(ctx context.Context, url string) (*Response, error)
}

type Response struct {
	Status int
	Data   []byte
	// FinalURL is the url that produced the response, after any redirects.
	FinalURL string
	Header   http.Header
}

// InterceptorFunc may inspect or modify every outgoing request.
type InterceptorFunc func(req *http.Request) error

const AcceptHeaderValue string = "application/hal+json, application/json;q=0.9"

func Debug(enabled string) func(*httpTransport) {
	return func(t *httpTransport) {
		t.debug = (enabled == "true")
	}
}

func Headers(headers map[string][]string) func(*httpTransport) {
	return func(t *httpTransport) {
		for header, values := range headers {
			for _, val := range values {
				t.headers.Add(header, val)
			}
		}
	}
}

func Header(name, value string) func(*httpTransport) {
	return func(t *httpTransport) {
		t.headers.Add(name, value)
	}
}

func Interceptor(interceptor InterceptorFunc) func(*httpTransport) {
	return func(t *httpTransport) {
		t.interceptors = append(t.interceptors, interceptor)
	}
}

// HTTPClient replaces the default otelhttp instrumented client.
func HTTPClient(client *http.Client) func(*httpTransport) {
	return func(t *httpTransport) {
		t.httpClient = client
	}
}

func New(options ...func(*httpTransport)) Transport {
	t := &httpTransport{
		headers: http.Header{},
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}

	for _, option := range options {
		option(t)
	}

	return t
}

type httpTransport struct {
	httpClient   *http.Client
	headers      http.Header
	interceptors []InterceptorFunc
	debug        bool
}

func (t *httpTransport) Get(ctx context.Context, url string) (*Response, error) {
	return t.do(ctx, http.MethodGet, url, nil)
}

func (t *httpTransport) Post(ctx context.Context, url string, body []byte) (*Response, error) {
	return t.do(ctx, http.MethodPost, url, body)
}

func (t *httpTransport) Patch(ctx context.Context, url string, body []byte) (*Response, error) {
	return t.do(ctx, http.MethodPatch, url, body)
}

func (t *httpTransport) Put(ctx context.Context, url string, body []byte) (*Response, error) {
	return t.do(ctx, http.MethodPut, url, body)
}

func (t *httpTransport) Delete(ctx context.Context, url string) (*Response, error) {
	return t.do(ctx, http.MethodDelete, url, nil)
}

func (t *httpTransport) do(ctx context.Context, method, endpoint string, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %s (%w)", err.Error(), errors.ErrInternal)
	}

	req.Header.Set("Accept", AcceptHeaderValue)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for header, values := range t.headers {
		req.Header.Del(header)
		for _, val := range values {
			req.Header.Add(header, val)
		}
	}

	for _, intercept := range t.interceptors {
		if err = intercept(req); err != nil {
			return nil, fmt.Errorf("request rejected by interceptor: %s (%w)", err.Error(), errors.ErrRequest)
		}
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %s (%w)", err.Error(), errors.ErrRequest)
	}

	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %s (%w)", err.Error(), errors.ErrBadResponse)
	}

	if t.debug && resp.StatusCode >= http.StatusBadRequest {
		if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusNotFound {
			reqbytes, _ := httputil.DumpRequest(req, false)
			respbytes, _ := httputil.DumpResponse(resp, false)

			log := logging.GetFromContext(ctx)
			log.Error("request failed", "request", string(reqbytes), "response", string(respbytes))
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, errors.NewErrorFromResponse(resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
	}

	finalURL := endpoint
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Response{
		Status:   resp.StatusCode,
		Data:     respBody,
		FinalURL: finalURL,
		Header:   resp.Header,
	}, nil
}
