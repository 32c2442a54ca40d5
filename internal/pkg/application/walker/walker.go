package walker

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/diwise/hal-client/pkg/hal"
	"github.com/diwise/hal-client/pkg/hal/transport"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GraphWalker loads a resource graph from an api and prints it.
type GraphWalker interface {
	Fetch(ctx context.Context, root string) (hal.Model, error)
	Print(ctx context.Context, root hal.Model, out io.Writer) error
}

var tracer = otel.Tracer("hal-walker")

type walkerApp struct {
	client  *hal.Client
	depth   int
	exclude []*regexp.Regexp
}

// New returns a walker for api. The transport settings of api are lost if
// session already holds a client for the same base url.
func New(ctx context.Context, session *hal.Session, api API) (GraphWalker, error) {
	headers := map[string][]string{}
	for name, value := range api.Headers {
		headers[name] = []string{value}
	}

	debug := "false"
	if api.Debug {
		debug = "true"
	}

	app := &walkerApp{
		client: session.CreateClient(api.BaseURL, hal.WithTransport(
			transport.New(transport.Debug(debug), transport.Headers(headers)),
		)),
		depth: api.Depth,
	}

	for _, pattern := range api.Exclude {
		re, err := regexp.CompilePOSIX(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		app.exclude = append(app.exclude, re)
	}

	return app, nil
}

// Fetch loads root and then follows the plain links of every loaded
// resource, level by level, until the configured depth is reached.
func (app *walkerApp) Fetch(ctx context.Context, root string) (m hal.Model, err error) {
	ctx, span := tracer.Start(ctx, "walk-api",
		trace.WithAttributes(attribute.String(hal.TraceAttributeResourceURI, app.client.Resolve(root))),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	log := logging.GetFromContext(ctx)

	m, err = app.client.Fetch(ctx, root, hal.ResourceType)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{m.HAL().Handle(): {}}
	frontier := []hal.Model{m}

	for level := 0; level < app.depth && len(frontier) > 0; level++ {
		next := []hal.Model{}

		for _, parent := range frontier {
			for _, name := range parent.HAL().Links() {
				for _, link := range parent.HAL().GetLinks(name) {
					r := link.HAL()

					if !app.shouldFollow(r) {
						continue
					}

					if _, ok := seen[r.Handle()]; ok {
						continue
					}
					seen[r.Handle()] = struct{}{}

					if _, err := r.Fetch(ctx); err != nil {
						log.Warn("failed to fetch linked resource", "relation", name, "href", r.URI().Href(), "err", err.Error())
						continue
					}

					next = append(next, link)
				}
			}
		}

		log.Debug("walked level", "level", level+1, "count", len(next))
		frontier = next
	}

	return m, nil
}

func (app *walkerApp) shouldFollow(r *hal.Resource) bool {
	u := r.URI()
	if u == nil || u.Href() == "" || u.Templated() {
		return false
	}

	for _, re := range app.exclude {
		if re.MatchString(u.Href()) {
			return false
		}
	}

	return true
}

// Print writes one line per resource reachable from root, indented by the
// number of relations followed to reach it.
func (app *walkerApp) Print(ctx context.Context, root hal.Model, out io.Writer) error {
	return hal.Walk(root, func(path []string, m hal.Model) error {
		relation := "root"
		if len(path) > 0 {
			relation = path[len(path)-1]
		}

		r := m.HAL()

		_, err := fmt.Fprintf(out, "%s%s %s [%s] %d properties\n",
			strings.Repeat("  ", len(path)), relation, describe(r), r.State(), len(r.Properties()))

		return err
	})
}

func describe(r *hal.Resource) string {
	u := r.URI()
	if u == nil || u.Href() == "" {
		return "(anonymous)"
	}
	return u.String()
}
