package cache

import (
	"testing"

	"github.com/matryer/is"
)

type client struct{ base string }
type resource struct{ uri string }

func TestStoresAreIndependent(t *testing.T) {
	is := is.New(t)
	c := New[*client, *resource]()

	is.True(c.Clients().Set("http://api", &client{base: "http://api"}))
	is.True(c.Resources().Set("http://api/a/1", &resource{uri: "/a/1"}))

	is.True(c.Clients().Has("http://api"))
	is.True(!c.Clients().Has("http://api/a/1"))
	is.Equal(c.Resources().Len(), 1)
}

func TestDisablingFlushesAndIgnoresWrites(t *testing.T) {
	is := is.New(t)
	c := New[*client, *resource]()

	c.Resources().Set("a", &resource{})
	c.Clients().Set("b", &client{})

	c.Disable()
	is.True(!c.Enabled())
	is.Equal(c.Resources().Len(), 0)
	is.Equal(c.Clients().Len(), 0)

	is.True(!c.Resources().Set("a", &resource{})) // writes are ignored while disabled
	is.True(!c.Resources().Has("a"))

	c.Enable()
	is.True(c.Resources().Set("a", &resource{}))
	is.True(c.Resources().Has("a"))
}

func TestPurge(t *testing.T) {
	is := is.New(t)
	c := New[*client, *resource]()

	for _, k := range []string{"http://api/orders/1", "http://api/orders/2", "http://api/customers/1"} {
		c.Resources().Set(k, &resource{uri: k})
	}

	n, err := c.Resources().Purge(`/orders/\d+$`)
	is.NoErr(err)
	is.Equal(n, 2)
	is.Equal(c.Resources().Keys(), []string{"http://api/customers/1"})

	_, err = c.Resources().Purge(`(`)
	is.True(err != nil) // invalid patterns are reported
}
