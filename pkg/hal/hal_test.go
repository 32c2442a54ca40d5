package hal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/diwise/hal-client/pkg/hal/metadata"
	"github.com/diwise/hal-client/pkg/hal/uri"
	"github.com/go-chi/chi/v5"
)

type order struct {
	*Resource
}

func (o *order) Total() float64 {
	total, _ := o.GetProperty("total").(float64)
	return total
}

type customer struct {
	*Resource
}

type item struct {
	*Resource
}

type address struct {
	Street string
	City   string
}

func (a *address) Assign(key string, value any) {
	switch key {
	case "street":
		a.Street, _ = value.(string)
	case "city":
		a.City, _ = value.(string)
	}
}

var addressType = MustValueType("Address", func() Value { return &address{} })

var itemType = MustResourceType("Item", func(r *Resource) Model { return &item{r} })

var customerType = MustResourceType("Customer", func(r *Resource) Model { return &customer{r} })

var orderType = MustResourceType("Order", func(r *Resource) Model { return &order{r} },
	metadata.Property("total"),
	metadata.Property("shippingAddress", metadata.WireName("shipping_address"), metadata.Target("Address")),
	metadata.Link("customer", metadata.Target("Customer")),
	metadata.Embedded("items", metadata.Array(), metadata.Target("Item")),
)

const orderDocument string = `{
	"_links": {
		"self":     {"href": "/orders/1"},
		"customer": {"href": "/customers/7", "title": "Jane"}
	},
	"_embedded": {
		"items": [
			{"_links": {"self": "/items/1"}, "name": "socks"},
			{"_links": {"self": "/items/2"}, "name": "shoes"}
		]
	},
	"total":            10,
	"currency":         "SEK",
	"shipping_address": {"street": "Storgatan 1", "city": "Sundsvall"}
}`

// newHALServer serves each document as application/hal+json on its path.
func newHALServer(documents map[string]string) *httptest.Server {
	r := chi.NewRouter()

	for path, document := range documents {
		body := []byte(document)
		r.Get(path, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", uri.HALMediaType)
			w.WriteHeader(http.StatusOK)
			w.Write(body)
		})
	}

	return httptest.NewServer(r)
}

func parseDocument(t *testing.T, c *Client, requestedURI, document string, typ *Type) Model {
	t.Helper()

	m, err := c.Session().Parse(context.Background(), c, []byte(document), requestedURI, typ, nil, requestedURI)
	if err != nil {
		t.Fatalf("failed to parse document: %s", err.Error())
	}

	return m
}
