package hal

// Serializer turns resource attributes into request body values.
type Serializer interface {
	// ParseResource returns the wire representation of a linked or
	// embedded resource.
	ParseResource(m Model) any
	// ParseProp returns the wire representation of any other value, or
	// false if the value should be left out of the body.
	ParseProp(value any) (any, bool)
}

type defaultSerializer struct{}

// DefaultSerializer writes resources as their resource uri and leaves out
// nil values.
func DefaultSerializer() Serializer {
	return defaultSerializer{}
}

func (defaultSerializer) ParseResource(m Model) any {
	if m == nil {
		return nil
	}

	u := m.HAL().URI()
	if u == nil {
		return nil
	}

	return u.ResourceURI()
}

func (defaultSerializer) ParseProp(value any) (any, bool) {
	return value, value != nil
}

func serializeValue(s Serializer, value any) (any, bool) {
	switch v := value.(type) {
	case Model:
		return s.ParseResource(v), true
	case []Model:
		uris := make([]any, 0, len(v))
		for _, m := range v {
			uris = append(uris, s.ParseResource(m))
		}
		return uris, true
	case []any:
		if links, ok := asModels(v); ok {
			return serializeValue(s, links)
		}
	}

	return s.ParseProp(value)
}
