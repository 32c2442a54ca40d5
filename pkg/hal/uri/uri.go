// Package uri describes the identity of a remote resource and decides
// whether, and under which key, it may be cached.
package uri

import (
	"fmt"
	"mime"
	"strings"
	"sync"

	"github.com/diwise/hal-client/pkg/hal/errors"
	"github.com/diwise/hal-client/pkg/uritemplate"
)

const HALMediaType string = "application/hal+json"

// Data wraps the href of a resource together with its templating, media
// type and provenance information.
type Data struct {
	mu sync.RWMutex

	href      string
	templated bool
	mediaType string

	requestedURI string
	receivedURI  string
	fetchedURI   string

	template *uritemplate.Template
}

func New(href string, templated bool, requestedURI, mediaType string) *Data {
	return &Data{
		href:         href,
		templated:    templated,
		mediaType:    mediaType,
		requestedURI: requestedURI,
	}
}

func (d *Data) Href() string {
	return d.href
}

func (d *Data) Templated() bool {
	return d.templated
}

func (d *Data) MediaType() string {
	return d.mediaType
}

func (d *Data) RequestedURI() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.requestedURI
}

func (d *Data) SetRequestedURI(u string) {
	d.mu.Lock()
	d.requestedURI = u
	d.mu.Unlock()
}

func (d *Data) ReceivedURI() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.receivedURI
}

func (d *Data) SetReceivedURI(u string) {
	d.mu.Lock()
	d.receivedURI = u
	d.mu.Unlock()
}

func (d *Data) FetchedURI() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.fetchedURI
}

// SetFetchedURI records the concrete uri last used to fetch a templated
// resource. It fails for identities that are not templated.
func (d *Data) SetFetchedURI(u string) error {
	if !d.templated {
		return fmt.Errorf("can not set fetched uri %q on %q (%w)", u, d.href, errors.ErrNotTemplated)
	}

	d.mu.Lock()
	d.fetchedURI = u
	d.mu.Unlock()

	return nil
}

// ResourceURI is the fetched uri for templated identities and the href
// for everything else.
func (d *Data) ResourceURI() string {
	if d.templated {
		return d.FetchedURI()
	}
	return d.href
}

// Fill returns the uri to request for this identity. Templated hrefs are
// expanded with params, plain hrefs are returned as is.
func (d *Data) Fill(params map[string]any) (string, error) {
	if !d.templated {
		return d.href, nil
	}

	d.mu.Lock()
	if d.template == nil {
		d.template = uritemplate.Compile(d.href)
	}
	tmpl := d.template
	d.mu.Unlock()

	if err := tmpl.Err(); err != nil {
		return "", fmt.Errorf("%s: %s (%w)", d.href, err.Error(), errors.ErrInvalidTemplate)
	}

	filled, ok := tmpl.Fill(params)
	if !ok {
		return "", fmt.Errorf("failed to expand %s (%w)", d.href, errors.ErrInvalidTemplate)
	}

	return filled, nil
}

func (d *Data) CacheKey(clientBaseURL string) (string, bool) {
	return CalculateCacheKey(d.href, d.templated, d.mediaType, d.RequestedURI(), clientBaseURL)
}

func (d *Data) String() string {
	if d.templated {
		return fmt.Sprintf("%s (templated)", d.href)
	}
	return d.href
}

// CalculateCacheKey returns the canonical key of a resource, or false when
// the identity is too ambiguous to be cached.
func CalculateCacheKey(href string, templated bool, mediaType, requestedURI, clientBaseURL string) (string, bool) {
	if href == "" || templated {
		return "", false
	}

	if mediaType != "" && !isHAL(mediaType) {
		return "", false
	}

	if IsAbsolute(href) {
		return href, true
	}

	base := NormalizeBase(clientBaseURL)
	if base == "" {
		return "", false
	}

	// the resource was served from a different origin than the client is scoped to
	if IsAbsolute(requestedURI) && !strings.HasPrefix(requestedURI, base) {
		return "", false
	}

	return base + href, true
}

func isHAL(mediaType string) bool {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		mt = strings.TrimSpace(mediaType)
	}
	return strings.EqualFold(mt, HALMediaType)
}

func IsAbsolute(u string) bool {
	return len(u) >= 4 && strings.EqualFold(u[:4], "http")
}

// NormalizeBase strips trailing slashes from a base url.
func NormalizeBase(base string) string {
	return strings.TrimRight(base, "/")
}

// Resolve returns ref unchanged if it is absolute, and prefixed with the
// normalized base otherwise.
func Resolve(base, ref string) string {
	if IsAbsolute(ref) || base == "" {
		return ref
	}

	base = NormalizeBase(base)
	if ref != "" && !strings.HasPrefix(ref, "/") && !strings.HasPrefix(ref, "?") {
		return base + "/" + ref
	}

	return base + ref
}
