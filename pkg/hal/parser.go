package hal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/diwise/hal-client/pkg/hal/errors"
	"github.com/diwise/hal-client/pkg/hal/metadata"
	"github.com/diwise/hal-client/pkg/hal/uri"
)

const (
	linksKey    string = "_links"
	embeddedKey string = "_embedded"
	selfKey     string = "self"
)

// field is a single member of a json object, kept in document order.
type field struct {
	key   string
	value json.RawMessage
}

func decodeObject(raw []byte) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected a json object")
	}

	fields := []field{}

	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return nil, err
		}

		key, _ := tok.(string)

		var value json.RawMessage
		if err = dec.Decode(&value); err != nil {
			return nil, err
		}

		fields = append(fields, field{key: key, value: value})
	}

	if _, err = dec.Token(); err != nil {
		return nil, err
	}

	return fields, nil
}

func kindOf(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// parseContext carries the provenance of the document being parsed down
// to nested resources.
type parseContext struct {
	client       *Client
	requestedURI string
	receivedURI  string
	payload      []byte

	// resources whose documents are being parsed further up the tree
	inProgress map[*Resource]struct{}
}

// Parse builds the resource graph described by raw. When existing is given
// it is refreshed in place, otherwise the root is obtained through the
// identity cache from its self link.
func (s *Session) Parse(ctx context.Context, c *Client, raw []byte, requestedURI string, t *Type, existing Model, receivedURI string) (Model, error) {
	if t == nil || !t.IsResource() {
		t = ResourceType
	}

	pc := &parseContext{
		client:       c,
		requestedURI: requestedURI,
		receivedURI:  receivedURI,
		payload:      raw,
		inProgress:   map[*Resource]struct{}{},
	}

	return s.parse(ctx, pc, raw, t, existing)
}

func (s *Session) parse(ctx context.Context, pc *parseContext, raw []byte, t *Type, existing Model) (_ Model, err error) {
	switch kindOf(raw) {
	case '{':
	case '[':
		return nil, errors.NewNotAResourceError("a top level array is not a hal resource", pc.payload)
	default:
		return nil, errors.NewNotAResourceError("document is not a json object", pc.payload)
	}

	fields, err := decodeObject(raw)
	if err != nil {
		return nil, errors.NewNotAResourceError(fmt.Sprintf("malformed document: %s", err.Error()), pc.payload)
	}

	var links []field
	for _, f := range fields {
		if f.key == linksKey && kindOf(f.value) == '{' {
			if links, err = decodeObject(f.value); err != nil {
				return nil, errors.NewNotAResourceError(fmt.Sprintf("malformed links: %s", err.Error()), pc.payload)
			}
		}
	}

	var r *Resource

	if existing != nil {
		r = existing.HAL()
		if u := r.URI(); u != nil {
			u.SetRequestedURI(pc.requestedURI)
			u.SetReceivedURI(pc.receivedURI)
			if u.Templated() {
				u.SetFetchedURI(pc.requestedURI)
			}
		}
	} else {
		u, err := s.selfURI(links, pc)
		if err != nil {
			return nil, err
		}

		m, previous := s.createResource(pc.client, t, u)
		if previous != nil {
			s.logUpgrade(ctx, m, previous.Name())
		}

		r = m.HAL()
	}

	// an embedded document naming one of its ancestors as self must not
	// restart the load of that ancestor
	if _, busy := pc.inProgress[r]; busy {
		return r.Model(), nil
	}
	pc.inProgress[r] = struct{}{}
	defer delete(pc.inProgress, r)

	// the document is decoded into fresh attributes and only swapped into
	// the instance once every field has been accepted
	staged := newAttributes()

	previous := r.setState(Loading)
	defer func() {
		if err != nil {
			r.setState(previous)
		}
	}()

	info, _ := metadata.Default().Lookup(r.Type().Name())

	for _, f := range fields {
		switch f.key {
		case linksKey:
			for _, l := range links {
				if l.key == selfKey {
					continue
				}

				name := info.WireToModel(l.key)
				target := s.targetType(info, name)

				link, err := s.resolveLinks(ctx, pc, l.key, l.value, target)
				if err != nil {
					return nil, err
				}

				staged.setLink(name, link)
			}
		case embeddedKey:
			if kindOf(f.value) != '{' {
				value, err := s.convert(ctx, pc, f.value, false, f.key, info)
				if err != nil {
					return nil, err
				}
				staged.assign(f.key, value)
				continue
			}

			embedded, err := decodeObject(f.value)
			if err != nil {
				return nil, errors.NewNotAResourceError(fmt.Sprintf("malformed embedded resources: %s", err.Error()), pc.payload)
			}

			for _, e := range embedded {
				name := info.WireToModel(e.key)

				value, err := s.convert(ctx, pc, e.value, true, name, info)
				if err != nil {
					return nil, err
				}

				staged.assign(name, value)
			}
		default:
			name := info.WireToModel(f.key)

			value, err := s.convert(ctx, pc, f.value, false, name, info)
			if err != nil {
				return nil, err
			}

			staged.assign(name, value)
		}
	}

	r.attrs.replace(staged)
	r.finishLoad()

	return r.Model(), nil
}

func (s *Session) selfURI(links []field, pc *parseContext) (*uri.Data, error) {
	for _, l := range links {
		if l.key != selfKey {
			continue
		}

		if kindOf(l.value) == '[' {
			var entries []json.RawMessage
			if err := json.Unmarshal(l.value, &entries); err != nil || len(entries) == 0 {
				break
			}
			l.value = entries[0]
		}

		href, templated, mediaType, _, err := s.linkObject(pc, selfKey, l.value)
		if err != nil {
			return nil, err
		}

		u := uri.New(href, templated, pc.requestedURI, mediaType)
		u.SetReceivedURI(pc.receivedURI)
		if templated {
			u.SetFetchedURI(pc.requestedURI)
		}

		return u, nil
	}

	u := uri.New("", false, pc.requestedURI, "")
	u.SetReceivedURI(pc.receivedURI)

	return u, nil
}

func (s *Session) targetType(info *metadata.TypeInfo, name string) *Type {
	if target, ok := info.TargetType(name); ok {
		if t, ok := LookupType(target); ok && t.IsResource() {
			return t
		}
	}
	return ResourceType
}

// linkObject reads a link in either its string or its object form.
func (s *Session) linkObject(pc *parseContext, relation string, raw json.RawMessage) (href string, templated bool, mediaType string, extras []field, err error) {
	switch kindOf(raw) {
	case '"':
		err = json.Unmarshal(raw, &href)
		return
	case '{':
		var fields []field
		if fields, err = decodeObject(raw); err != nil {
			err = errors.NewNotAResourceError(fmt.Sprintf("malformed link %s: %s", relation, err.Error()), pc.payload)
			return
		}

		hasHref := false

		for _, f := range fields {
			switch f.key {
			case "href":
				hasHref = json.Unmarshal(f.value, &href) == nil
			case "templated":
				json.Unmarshal(f.value, &templated)
			case "type":
				json.Unmarshal(f.value, &mediaType)
				extras = append(extras, f)
			default:
				extras = append(extras, f)
			}
		}

		if !hasHref {
			err = errors.NewLinkWithoutHrefError(relation, pc.payload)
		}
		return
	}

	err = errors.NewLinkWithoutHrefError(relation, pc.payload)
	return
}

func (s *Session) resolveLinks(ctx context.Context, pc *parseContext, relation string, raw json.RawMessage, t *Type) (any, error) {
	if kindOf(raw) != '[' {
		return s.resolveLink(ctx, pc, relation, raw, t)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errors.NewNotAResourceError(fmt.Sprintf("malformed link array %s: %s", relation, err.Error()), pc.payload)
	}

	links := make([]Model, 0, len(entries))
	for _, entry := range entries {
		link, err := s.resolveLink(ctx, pc, relation, entry, t)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}

	return links, nil
}

func (s *Session) resolveLink(ctx context.Context, pc *parseContext, relation string, raw json.RawMessage, t *Type) (Model, error) {
	href, templated, mediaType, extras, err := s.linkObject(pc, relation, raw)
	if err != nil {
		return nil, err
	}

	u := uri.New(href, templated, pc.requestedURI, mediaType)
	if templated {
		u.SetFetchedURI(pc.receivedURI)
	}

	m, previous := s.createResource(pc.client, t, u)
	if previous != nil {
		s.logUpgrade(ctx, m, previous.Name())
	}

	child := m.HAL()
	for _, extra := range extras {
		var value any
		if err := json.Unmarshal(extra.value, &value); err != nil {
			continue
		}
		child.storeProperty(extra.key, value, false)
	}

	return m, nil
}

// convert turns a raw json value into a property value. Objects become
// resources when they are embedded without a declared type or when the
// attribute is declared as a resource, and instances of the declared value
// type otherwise. Objects without any declaration are kept as plain maps.
func (s *Session) convert(ctx context.Context, pc *parseContext, raw json.RawMessage, embedded bool, name string, info *metadata.TypeInfo) (any, error) {
	switch kindOf(raw) {
	case 'n':
		if isNull(raw) {
			return nil, nil
		}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, errors.NewNotAResourceError(fmt.Sprintf("malformed array %s: %s", name, err.Error()), pc.payload)
		}

		values := make([]any, 0, len(items))
		for _, item := range items {
			value, err := s.convert(ctx, pc, item, embedded, name, info)
			if err != nil {
				return nil, err
			}
			values = append(values, value)
		}

		return values, nil
	case '{':
		return s.convertObject(ctx, pc, raw, embedded, name, info)
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, errors.NewNotAResourceError(fmt.Sprintf("malformed value %s: %s", name, err.Error()), pc.payload)
	}

	return value, nil
}

func (s *Session) convertObject(ctx context.Context, pc *parseContext, raw json.RawMessage, embedded bool, name string, info *metadata.TypeInfo) (any, error) {
	var target *Type

	if typeName, ok := info.TargetType(name); ok {
		t, err := resolveType(typeName)
		if err != nil {
			return nil, err
		}
		target = t
	}

	if (target == nil && embedded) || info.IsResource(name) || target.IsResource() {
		if target == nil || !target.IsResource() {
			target = ResourceType
		}
		return s.parse(ctx, pc, raw, target, nil)
	}

	if target != nil {
		fields, err := decodeObject(raw)
		if err != nil {
			return nil, errors.NewNotAResourceError(fmt.Sprintf("malformed object %s: %s", name, err.Error()), pc.payload)
		}

		valueInfo, _ := metadata.Default().Lookup(target.Name())
		value := target.newValue()

		for _, f := range fields {
			key := valueInfo.WireToModel(f.key)

			v, err := s.convert(ctx, pc, f.value, false, key, valueInfo)
			if err != nil {
				return nil, err
			}

			value.Assign(key, v)
		}

		return value, nil
	}

	var object map[string]any
	if err := json.Unmarshal(raw, &object); err != nil {
		return nil, errors.NewNotAResourceError(fmt.Sprintf("malformed object %s: %s", name, err.Error()), pc.payload)
	}

	return object, nil
}
