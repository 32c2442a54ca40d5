package hal

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/diwise/hal-client/pkg/hal/errors"
	"github.com/diwise/hal-client/pkg/hal/metadata"
	"github.com/diwise/hal-client/pkg/hal/uri"
	"github.com/google/uuid"
)

type State int

const (
	Uninitialized State = iota
	Loading
	Loaded
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	}
	return "uninitialized"
}

// attributes are shared between a resource and the instances converted
// from it.
type attributes struct {
	mu    sync.RWMutex
	order []string
	props map[string]any
	links map[string]any
}

func newAttributes() *attributes {
	return &attributes{
		props: map[string]any{},
		links: map[string]any{},
	}
}

func (a *attributes) clear() {
	a.mu.Lock()
	a.order = nil
	a.props = map[string]any{}
	a.links = map[string]any{}
	a.mu.Unlock()
}

// replace moves the contents of src into a. The struct itself is kept since
// converted resources share it.
func (a *attributes) replace(src *attributes) {
	src.mu.Lock()
	order, props, links := src.order, src.props, src.links
	src.order, src.props, src.links = nil, map[string]any{}, map[string]any{}
	src.mu.Unlock()

	a.mu.Lock()
	a.order, a.props, a.links = order, props, links
	a.mu.Unlock()
}

func (a *attributes) hasLink(name string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	_, ok := a.links[name]
	return ok
}

// assign routes link shaped values assigned to link names through the
// link setter. It reports whether anything changed and whether the value
// ended up as a link.
func (a *attributes) assign(name string, value any) (changed, isLink bool) {
	if a.hasLink(name) {
		if link, ok := asLink(value); ok {
			return a.setLink(name, link), true
		}
	}

	return a.setProperty(name, value), false
}

func (a *attributes) setProperty(name string, value any) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, wasLink := a.links[name]
	delete(a.links, name)

	old, existed := a.props[name]
	if !existed {
		a.order = append(a.order, name)
	}
	a.props[name] = value

	return wasLink || !existed || !sameValue(old, value)
}

func (a *attributes) setLink(name string, link any) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, wasProp := a.props[name]
	if wasProp {
		delete(a.props, name)
		a.order = remove(a.order, name)
	}

	old, existed := a.links[name]
	a.links[name] = link

	return wasProp || !existed || !sameValue(old, link)
}

// Resource is a node in the resource graph.
type Resource struct {
	mu sync.RWMutex

	id     string
	typ    *Type
	self   Model
	client *Client
	uri    *uri.Data
	attrs  *attributes

	state       State
	initialized bool
	dirtyProps  map[string]struct{}
	dirtyLinks  map[string]struct{}
}

func newResource(t *Type, c *Client, u *uri.Data) *Resource {
	return &Resource{
		id:         uuid.NewString(),
		typ:        t,
		client:     c,
		uri:        u,
		attrs:      newAttributes(),
		dirtyProps: map[string]struct{}{},
		dirtyLinks: map[string]struct{}{},
	}
}

func (r *Resource) HAL() *Resource {
	return r
}

// Model returns the typed instance wrapping this resource.
func (r *Resource) Model() Model {
	if r.self == nil {
		return r
	}
	return r.self
}

func (r *Resource) ID() string {
	return r.id
}

func (r *Resource) Type() *Type {
	return r.typ
}

func (r *Resource) Client() *Client {
	return r.client
}

func (r *Resource) URI() *uri.Data {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.uri
}

// Key returns the cache key of the resource if it has one.
func (r *Resource) Key() (string, bool) {
	u := r.URI()
	if u == nil {
		return "", false
	}

	base := ""
	if r.client != nil {
		base = r.client.BaseURL()
	}

	return u.CacheKey(base)
}

// Handle identifies the resource within a graph: its cache key when it has
// one, its generated id otherwise.
func (r *Resource) Handle() string {
	if key, ok := r.Key(); ok {
		return key
	}
	return r.id
}

func (r *Resource) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Resource) IsLoaded() bool {
	return r.State() == Loaded
}

func (r *Resource) setState(s State) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.state
	r.state = s
	return previous
}

func (r *Resource) tracking() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized && r.state != Loading
}


func (r *Resource) finishLoad() {
	r.mu.Lock()
	r.state = Loaded
	r.initialized = true
	r.dirtyProps = map[string]struct{}{}
	r.dirtyLinks = map[string]struct{}{}
	r.mu.Unlock()
}

// Reset removes all properties and links and marks the resource as clean.
func (r *Resource) Reset() {
	r.attrs.clear()
	r.ClearDirty()
}

func (r *Resource) setURI(u *uri.Data) {
	r.mu.Lock()
	r.uri = u
	r.mu.Unlock()
}

func (r *Resource) GetProperty(name string) any {
	a := r.attrs
	a.mu.RLock()
	defer a.mu.RUnlock()

	if link, ok := a.links[name]; ok {
		return link
	}

	return a.props[name]
}

func (r *Resource) HasProperty(name string) bool {
	r.attrs.mu.RLock()
	defer r.attrs.mu.RUnlock()

	_, ok := r.attrs.props[name]
	return ok
}

// SetProperty stores a property value. Names that are already links keep
// link semantics: resources are stored as links and strings are taken as
// the href of a new link.
func (r *Resource) SetProperty(name string, value any) {
	if r.HasLink(name) {
		if href, ok := value.(string); ok && r.client != nil {
			t := ResourceType
			if current := r.GetLink(name); current != nil {
				t = current.HAL().Type()
			}
			value = r.client.session.CreateResource(r.client, t, uri.New(href, false, "", ""))
		}
	}

	r.assign(name, value, r.tracking())
}

func (r *Resource) assign(name string, value any, track bool) {
	changed, isLink := r.attrs.assign(name, value)
	if !track || !changed {
		return
	}

	if isLink {
		r.markDirty(r.dirtyLinks, name)
	} else {
		r.markDirty(r.dirtyProps, name)
	}
}

func (r *Resource) storeProperty(name string, value any, track bool) {
	if r.attrs.setProperty(name, value) && track {
		r.markDirty(r.dirtyProps, name)
	}
}

func (r *Resource) HasLink(name string) bool {
	return r.attrs.hasLink(name)
}

// GetLink returns the single resource linked under name, or nil if there
// is none or the relation holds an array.
func (r *Resource) GetLink(name string) Model {
	r.attrs.mu.RLock()
	defer r.attrs.mu.RUnlock()

	m, _ := r.attrs.links[name].(Model)
	return m
}

// GetLinks returns every resource linked under name.
func (r *Resource) GetLinks(name string) []Model {
	r.attrs.mu.RLock()
	defer r.attrs.mu.RUnlock()

	switch l := r.attrs.links[name].(type) {
	case Model:
		return []Model{l}
	case []Model:
		return append([]Model{}, l...)
	}

	return nil
}

func (r *Resource) SetLink(name string, link Model) {
	r.storeLink(name, link, r.tracking())
}

func (r *Resource) SetLinks(name string, links []Model) {
	r.storeLink(name, links, r.tracking())
}

func (r *Resource) storeLink(name string, link any, track bool) {
	if r.attrs.setLink(name, link) && track {
		r.markDirty(r.dirtyLinks, name)
	}
}

func (r *Resource) markDirty(set map[string]struct{}, name string) {
	r.mu.Lock()
	set[name] = struct{}{}
	r.mu.Unlock()
}

// Properties returns the names of all properties in document order.
func (r *Resource) Properties() []string {
	r.attrs.mu.RLock()
	defer r.attrs.mu.RUnlock()
	return append([]string{}, r.attrs.order...)
}

// Links returns the names of all links in sorted order.
func (r *Resource) Links() []string {
	r.attrs.mu.RLock()
	defer r.attrs.mu.RUnlock()
	return sortedKeys(r.attrs.links)
}

func (r *Resource) DirtyProperties() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.dirtyProps)
}

func (r *Resource) DirtyLinks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.dirtyLinks)
}

func (r *Resource) IsDirty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dirtyProps) > 0 || len(r.dirtyLinks) > 0
}

func (r *Resource) ClearDirty() {
	r.mu.Lock()
	r.dirtyProps = map[string]struct{}{}
	r.dirtyLinks = map[string]struct{}{}
	r.mu.Unlock()
}

// Convert creates an instance of t that shares client, uri, properties and
// links with r. The new instance is neither loaded nor dirty.
func (r *Resource) Convert(t *Type) Model {
	if !t.IsResource() {
		t = ResourceType
	}

	c := &Resource{
		id:         r.id,
		typ:        t,
		client:     r.client,
		uri:        r.URI(),
		attrs:      r.attrs,
		dirtyProps: map[string]struct{}{},
		dirtyLinks: map[string]struct{}{},
	}
	c.self = t.newModel(c)

	return c.self
}

type fetchOptions struct {
	force  bool
	params map[string]any
}

type FetchOption func(*fetchOptions)

// Force fetches the resource even if it is already loaded.
func Force() FetchOption {
	return func(o *fetchOptions) { o.force = true }
}

// Params supplies the values used to expand a templated uri.
func Params(params map[string]any) FetchOption {
	return func(o *fetchOptions) { o.params = params }
}

// Fetch loads the resource from its uri, unless it is already loaded.
// The resource is refreshed in place so that existing references observe
// the new state.
func (r *Resource) Fetch(ctx context.Context, options ...FetchOption) (Model, error) {
	o := fetchOptions{}
	for _, option := range options {
		option(&o)
	}

	if r.IsLoaded() && !o.force && o.params == nil {
		return r.Model(), nil
	}

	u := r.URI()
	if u == nil || u.Href() == "" || r.client == nil {
		return r.Model(), nil
	}

	requestURI, err := u.Fill(o.params)
	if err != nil {
		return nil, err
	}

	previous := r.setState(Loading)

	m, err := r.client.fetch(ctx, requestURI, r.typ, r.Model())
	if err != nil {
		r.setState(previous)
		return nil, err
	}

	return m, nil
}

type writeOptions struct {
	typ        *Type
	serializer Serializer
	full       bool
}

type WriteOption func(*writeOptions)

// WithType maps the response body onto a resource of type t.
func WithType(t *Type) WriteOption {
	return func(o *writeOptions) { o.typ = t }
}

func WithSerializer(s Serializer) WriteOption {
	return func(o *writeOptions) { o.serializer = s }
}

// Full sends every property and link with PUT instead of the dirty ones
// with PATCH.
func Full() WriteOption {
	return func(o *writeOptions) { o.full = true }
}

func newWriteOptions(options []WriteOption) writeOptions {
	o := writeOptions{serializer: DefaultSerializer()}
	for _, option := range options {
		option(&o)
	}
	return o
}

func (r *Resource) requestURI() (string, error) {
	u := r.URI()
	if u == nil || u.ResourceURI() == "" {
		return "", fmt.Errorf("resource %s has no uri (%w)", r.id, errors.ErrMissingURI)
	}
	if r.client == nil {
		return "", fmt.Errorf("resource %s has no client (%w)", r.id, errors.ErrMissingURI)
	}
	return u.ResourceURI(), nil
}

// Update sends the changed properties and links to the server.
func (r *Resource) Update(ctx context.Context, options ...WriteOption) (Model, error) {
	o := newWriteOptions(options)

	target, err := r.requestURI()
	if err != nil {
		return nil, err
	}

	body := r.Serialize(o.serializer, !o.full)

	m, err := r.client.Update(ctx, target, body, o.full, o.typ)
	if err != nil {
		return nil, err
	}

	r.ClearDirty()

	return m, nil
}

// Create posts every property and link to the resource uri.
func (r *Resource) Create(ctx context.Context, options ...WriteOption) (Model, error) {
	o := newWriteOptions(options)

	target, err := r.requestURI()
	if err != nil {
		return nil, err
	}

	r.client.session.Forget(r)

	m, err := r.client.Create(ctx, target, r.Serialize(o.serializer, false), o.typ)
	if err != nil {
		return nil, err
	}

	r.ClearDirty()

	return m, nil
}

func (r *Resource) Delete(ctx context.Context, options ...WriteOption) (Model, error) {
	o := newWriteOptions(options)

	target, err := r.requestURI()
	if err != nil {
		return nil, err
	}

	return r.client.Delete(ctx, target, o.typ)
}

// Serialize builds the request body for the resource. With dirtyOnly set,
// only properties and links changed since the last load are included.
func (r *Resource) Serialize(s Serializer, dirtyOnly bool) map[string]any {
	if s == nil {
		s = DefaultSerializer()
	}

	info, _ := metadata.Default().Lookup(r.typ.Name())

	r.mu.RLock()
	dirtyProps := copySet(r.dirtyProps)
	dirtyLinks := copySet(r.dirtyLinks)
	r.mu.RUnlock()

	r.attrs.mu.RLock()
	defer r.attrs.mu.RUnlock()

	body := map[string]any{}

	for _, name := range r.attrs.order {
		if _, dirty := dirtyProps[name]; dirtyOnly && !dirty {
			continue
		}
		if v, ok := serializeValue(s, r.attrs.props[name]); ok {
			body[info.ModelToWire(name)] = v
		}
	}

	for name, link := range r.attrs.links {
		if _, dirty := dirtyLinks[name]; dirtyOnly && !dirty {
			continue
		}
		if v, ok := serializeValue(s, link); ok {
			body[info.ModelToWire(name)] = v
		}
	}

	return body
}

func (r *Resource) String() string {
	u := r.URI()
	if u == nil || u.Href() == "" {
		return fmt.Sprintf("%s(%s)", r.typ.Name(), r.id)
	}
	return fmt.Sprintf("%s(%s)", r.typ.Name(), u.String())
}

func asLink(value any) (any, bool) {
	switch v := value.(type) {
	case Model:
		return v, v != nil
	case []Model:
		return v, true
	case []any:
		if len(v) == 0 {
			return nil, false
		}
		links := make([]Model, 0, len(v))
		for _, item := range v {
			m, ok := item.(Model)
			if !ok {
				return nil, false
			}
			links = append(links, m)
		}
		return links, true
	}
	return nil, false
}

func sameValue(a, b any) bool {
	if ma, ok := a.(Model); ok {
		mb, ok := b.(Model)
		return ok && ma.HAL() == mb.HAL()
	}

	la, aIsList := asModels(a)
	lb, bIsList := asModels(b)
	if aIsList || bIsList {
		if !aIsList || !bIsList || len(la) != len(lb) {
			return false
		}
		for i := range la {
			if la[i].HAL() != lb[i].HAL() {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(a, b)
}

func asModels(v any) ([]Model, bool) {
	switch l := v.(type) {
	case []Model:
		return l, true
	case []any:
		if links, ok := asLink(l); ok {
			return links.([]Model), true
		}
	}
	return nil, false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copySet(s map[string]struct{}) map[string]struct{} {
	c := make(map[string]struct{}, len(s))
	for k := range s {
		c[k] = struct{}{}
	}
	return c
}

func remove(names []string, name string) []string {
	for i, n := range names {
		if n == name {
			return append(names[:i], names[i+1:]...)
		}
	}
	return names
}
