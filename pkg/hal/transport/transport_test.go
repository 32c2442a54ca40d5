package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	halerrors "github.com/diwise/hal-client/pkg/hal/errors"
	testutils "github.com/diwise/service-chassis/pkg/test/http"
	"github.com/diwise/service-chassis/pkg/test/http/expects"
	"github.com/diwise/service-chassis/pkg/test/http/response"
	"github.com/matryer/is"
)

var Expects = testutils.Expects
var Returns = testutils.Returns
var anyInput = expects.AnyInput
var method = expects.RequestMethod
var path = expects.RequestPath
var body = expects.RequestBody

func TestGet(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodGet),
			path("/orders/1"),
			HeaderEquals("Accept", AcceptHeaderValue),
			HeaderEquals("Authorization", "Bearer token"),
		),
		Returns(
			response.ContentType("application/hal+json"),
			response.Code(http.StatusOK),
			response.Body([]byte(`{"total":10}`)),
		),
	)
	defer s.Close()

	tr := New(Header("Authorization", "Bearer token"))

	resp, err := tr.Get(context.Background(), s.URL()+"/orders/1")
	is.NoErr(err)
	is.Equal(resp.Status, http.StatusOK)
	is.Equal(string(resp.Data), `{"total":10}`)
	is.Equal(resp.FinalURL, s.URL()+"/orders/1")
}

func TestPatchSendsJSONBody(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodPatch),
			path("/orders/1"),
			body(`{"total":11}`),
			HeaderEquals("Content-Type", "application/json"),
		),
		Returns(response.Code(http.StatusNoContent)),
	)
	defer s.Close()

	resp, err := New().Patch(context.Background(), s.URL()+"/orders/1", []byte(`{"total":11}`))
	is.NoErr(err)
	is.Equal(resp.Status, http.StatusNoContent)
	is.Equal(s.RequestCount(), 1)
}

func TestInterceptorsSeeEveryRequest(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, HeaderEquals("X-Tenant", "default")),
		Returns(response.Code(http.StatusNoContent)),
	)
	defer s.Close()

	intercepted := 0
	tr := New(Interceptor(func(r *http.Request) error {
		intercepted++
		r.Header.Set("X-Tenant", "default")
		return nil
	}))

	_, err := tr.Delete(context.Background(), s.URL()+"/orders/1")
	is.NoErr(err)
	is.Equal(intercepted, 1)
}

func TestInterceptorCanRejectRequest(t *testing.T) {
	is := is.New(t)

	tr := New(Interceptor(func(r *http.Request) error {
		return errors.New("nope")
	}))

	_, err := tr.Get(context.Background(), "http://localhost:1/orders")
	is.True(errors.Is(err, halerrors.ErrRequest))
}

func TestNotFoundIsMappedFromProblemReport(t *testing.T) {
	is := is.New(t)

	b, _ := json.Marshal(map[string]string{"type": "about:blank", "title": "Not Found", "detail": "no such order"})

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(
			response.ContentType("application/problem+json"),
			response.Code(http.StatusNotFound),
			response.Body(b),
		),
	)
	defer s.Close()

	_, err := New(Debug("true")).Get(context.Background(), s.URL()+"/orders/1")
	is.True(errors.Is(err, halerrors.ErrNotFound))
	is.Equal(err.Error(), "[code: 404] no such order")

	payload, ok := halerrors.PayloadOf(err)
	is.True(ok)
	is.Equal(string(payload), string(b))
}

func TestServerErrorIsInternal(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(response.Code(http.StatusBadGateway)),
	)
	defer s.Close()

	_, err := New().Post(context.Background(), s.URL()+"/orders", []byte(`{}`))
	is.True(errors.Is(err, halerrors.ErrInternal))
}

func TestFinalURLFollowsRedirects(t *testing.T) {
	is := is.New(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/hal+json")
		w.Write([]byte(`{}`))
	})

	s := httptest.NewServer(mux)
	defer s.Close()

	resp, err := New().Get(context.Background(), s.URL+"/old")
	is.NoErr(err)
	is.Equal(resp.FinalURL, s.URL+"/new")
}

func HeaderEquals(name, value string) func(*is.I, *http.Request) {
	return func(is *is.I, r *http.Request) {
		is.Equal(r.Header.Get(name), value) // request header should match
	}
}
