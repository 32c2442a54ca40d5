package hal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/diwise/hal-client/pkg/hal/errors"
	"github.com/diwise/hal-client/pkg/hal/transport"
	"github.com/diwise/hal-client/pkg/hal/uri"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	TraceAttributeResourceURI  string = "resource-uri"
	TraceAttributeResourceType string = "resource-type"
)

var tracer = otel.Tracer("hal-client")

type ClientOption func(*Client)

func WithTransport(t transport.Transport) ClientOption {
	return func(c *Client) {
		c.transport = t
	}
}

// WithHTTPClient uses client for the default transport.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.transport = transport.New(transport.HTTPClient(client))
	}
}

// Client fetches and writes resources relative to a base url.
type Client struct {
	session   *Session
	baseURL   string
	transport transport.Transport
}

func newClient(s *Session, baseURL string, options ...ClientOption) *Client {
	c := &Client{
		session: s,
		baseURL: baseURL,
	}

	for _, option := range options {
		option(c)
	}

	if c.transport == nil {
		c.transport = transport.New()
	}

	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Session() *Session {
	return c.session
}

// Resolve returns the absolute url of target.
func (c *Client) Resolve(target string) string {
	return uri.Resolve(c.baseURL, target)
}

// Fetch retrieves the document at target and parses it as a resource of
// type t.
func (c *Client) Fetch(ctx context.Context, target string, t *Type) (Model, error) {
	return c.fetch(ctx, target, t, nil)
}

// FetchResource is Fetch for the generic resource type.
func (c *Client) FetchResource(ctx context.Context, target string) (*Resource, error) {
	m, err := c.fetch(ctx, target, ResourceType, nil)
	if err != nil {
		return nil, err
	}
	return m.HAL(), nil
}

func (c *Client) fetch(ctx context.Context, target string, t *Type, existing Model) (m Model, err error) {
	if t == nil {
		t = ResourceType
	}

	requestURI := c.Resolve(target)

	ctx, span := tracer.Start(ctx, "fetch-resource",
		trace.WithAttributes(
			attribute.String(TraceAttributeResourceURI, requestURI),
			attribute.String(TraceAttributeResourceType, t.Name()),
		),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	resp, err := c.transport.Get(ctx, requestURI)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		err = fmt.Errorf("empty response from %s (%w)", requestURI, errors.ErrBadResponse)
		return nil, err
	}

	m, err = c.session.Parse(ctx, c, resp.Data, requestURI, t, existing, receivedURI(resp, requestURI))
	return m, err
}

// FetchArray retrieves a collection of resources of type t. The response
// is either a bare array of resources or a resource whose first embedded
// relation holds the array.
func (c *Client) FetchArray(ctx context.Context, target string, t *Type) (models []Model, err error) {
	if t == nil {
		t = ResourceType
	}

	requestURI := c.Resolve(target)

	ctx, span := tracer.Start(ctx, "fetch-array",
		trace.WithAttributes(
			attribute.String(TraceAttributeResourceURI, requestURI),
			attribute.String(TraceAttributeResourceType, t.Name()),
		),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	resp, err := c.transport.Get(ctx, requestURI)
	if err != nil {
		return nil, err
	}

	items, err := arrayItems(resp.Data)
	if err != nil {
		return nil, err
	}

	pc := &parseContext{
		client:       c,
		requestedURI: requestURI,
		receivedURI:  receivedURI(resp, requestURI),
		payload:      resp.Data,
	}

	models = make([]Model, 0, len(items))

	for _, item := range items {
		var m Model
		m, err = c.session.parse(ctx, pc, item, t, nil)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}

	return models, nil
}

func arrayItems(data []byte) ([]json.RawMessage, error) {
	var items []json.RawMessage

	switch kindOf(data) {
	case '[':
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, errors.NewShapeMismatchError(fmt.Sprintf("malformed array: %s", err.Error()), data)
		}
		return items, nil
	case '{':
		fields, err := decodeObject(data)
		if err != nil {
			return nil, errors.NewShapeMismatchError(fmt.Sprintf("malformed object: %s", err.Error()), data)
		}

		for _, f := range fields {
			if f.key != embeddedKey {
				continue
			}

			if kindOf(f.value) != '{' {
				return nil, errors.NewShapeMismatchError("embedded resources must be an object", data)
			}

			embedded, err := decodeObject(f.value)
			if err != nil || len(embedded) == 0 {
				return nil, errors.NewShapeMismatchError("expected at least one embedded relation", data)
			}

			if kindOf(embedded[0].value) != '[' {
				return nil, errors.NewShapeMismatchError(fmt.Sprintf("embedded relation %s is not an array", embedded[0].key), data)
			}

			if err := json.Unmarshal(embedded[0].value, &items); err != nil {
				return nil, errors.NewShapeMismatchError(fmt.Sprintf("malformed array: %s", err.Error()), data)
			}

			return items, nil
		}

		return nil, errors.NewShapeMismatchError("object response has no embedded resources", data)
	}

	return nil, errors.NewShapeMismatchError("response is neither an array nor an object", data)
}

// Create posts body to target. The response, or the resource at the
// returned location, is mapped onto a resource of type t when t is given.
func (c *Client) Create(ctx context.Context, target string, body any, t *Type) (m Model, err error) {
	requestURI := c.Resolve(target)

	ctx, span := c.startWrite(ctx, "create-resource", requestURI, t)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %s (%w)", err.Error(), errors.ErrBadRequest)
	}

	resp, err := c.transport.Post(ctx, requestURI, payload)
	if err != nil {
		return nil, err
	}

	if resp.Status == http.StatusCreated && len(resp.Data) == 0 && resp.Header.Get("Location") == "" {
		log := logging.GetFromContext(ctx)
		log.Warn("server failed to provide a location header with created response", "uri", requestURI)
	}

	m, err = c.mapResponse(ctx, resp, requestURI, t)
	return m, err
}

// Update sends body to target with PATCH, or with PUT when full is set.
func (c *Client) Update(ctx context.Context, target string, body any, full bool, t *Type) (m Model, err error) {
	requestURI := c.Resolve(target)

	ctx, span := c.startWrite(ctx, "update-resource", requestURI, t)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %s (%w)", err.Error(), errors.ErrBadRequest)
	}

	var resp *transport.Response
	if full {
		resp, err = c.transport.Put(ctx, requestURI, payload)
	} else {
		resp, err = c.transport.Patch(ctx, requestURI, payload)
	}
	if err != nil {
		return nil, err
	}

	m, err = c.mapResponse(ctx, resp, requestURI, t)
	return m, err
}

func (c *Client) Delete(ctx context.Context, target string, t *Type) (m Model, err error) {
	requestURI := c.Resolve(target)

	ctx, span := c.startWrite(ctx, "delete-resource", requestURI, t)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	resp, err := c.transport.Delete(ctx, requestURI)
	if err != nil {
		return nil, err
	}

	m, err = c.mapResponse(ctx, resp, requestURI, t)
	return m, err
}

func (c *Client) startWrite(ctx context.Context, name, requestURI string, t *Type) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(
			attribute.String(TraceAttributeResourceURI, requestURI),
			attribute.String(TraceAttributeResourceType, t.Name()),
		),
	)
}

// mapResponse parses the body of a write response when a type was asked
// for. A response with a location header but no body yields an unloaded
// resource at that location.
func (c *Client) mapResponse(ctx context.Context, resp *transport.Response, requestURI string, t *Type) (Model, error) {
	if t == nil {
		return nil, nil
	}

	if len(resp.Data) == 0 {
		location := resp.Header.Get("Location")
		if location == "" {
			return nil, nil
		}

		return c.session.CreateResource(c, t, uri.New(location, false, requestURI, "")), nil
	}

	return c.session.Parse(ctx, c, resp.Data, requestURI, t, nil, receivedURI(resp, requestURI))
}

func receivedURI(resp *transport.Response, requestURI string) string {
	if resp.FinalURL != "" {
		return resp.FinalURL
	}
	return requestURI
}
