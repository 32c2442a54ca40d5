package hal

import (
	"context"
	"fmt"

	"github.com/diwise/hal-client/pkg/hal/errors"
)

// As returns m as an M. It never converts between types.
func As[M Model](m Model) (M, error) {
	var zero M

	if m == nil {
		return zero, fmt.Errorf("no resource to convert (%w)", errors.ErrShapeMismatch)
	}

	if typed, ok := m.(M); ok {
		return typed, nil
	}

	if typed, ok := m.HAL().Model().(M); ok {
		return typed, nil
	}

	return zero, fmt.Errorf("%s is a %s and not a %T (%w)", m.HAL(), m.HAL().Type().Name(), zero, errors.ErrShapeMismatch)
}

// Fetch retrieves target as a resource of type t and returns it as M.
func Fetch[M Model](ctx context.Context, c *Client, target string, t *Type) (M, error) {
	m, err := c.Fetch(ctx, target, t)
	if err != nil {
		var zero M
		return zero, err
	}

	return As[M](m)
}

func FetchArray[M Model](ctx context.Context, c *Client, target string, t *Type) ([]M, error) {
	models, err := c.FetchArray(ctx, target, t)
	if err != nil {
		return nil, err
	}

	typed := make([]M, 0, len(models))
	for _, m := range models {
		tm, err := As[M](m)
		if err != nil {
			return nil, err
		}
		typed = append(typed, tm)
	}

	return typed, nil
}
