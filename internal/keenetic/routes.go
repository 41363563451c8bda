package keenetic

import (
	"context"
	"net/http"
	"strings"

	"github.com/kroleg/homelab/internal/domain"
	"github.com/kroleg/homelab/internal/logger"
)

// RouteResult is the per-route outcome of an add call. Multi-interface
// adds can partially fail, so the router answers one status per route.
type RouteResult struct {
	Route   domain.Route
	OK      bool
	Message string
}

// ListRoutes returns every static route configured on the router,
// engine-owned or not. Entries the router reports in a shape we cannot
// parse are skipped with a warning rather than failing the listing.
func (c *Client) ListRoutes(ctx context.Context) ([]domain.Route, error) {
	var payload []routePayload
	if err := c.do(ctx, http.MethodGet, "/rci/show/sc/ip/route", nil, &payload); err != nil {
		return nil, err
	}

	routes := make([]domain.Route, 0, len(payload))
	for _, p := range payload {
		r, err := p.toDomain()
		if err != nil {
			c.log.Warn("skipping unparsable route entry", logger.Error(err))
			continue
		}
		routes = append(routes, r)
	}
	return routes, nil
}

// AddRoutes installs the given routes in one batch call. Transport
// failure returns an error; individual rejections come back as failed
// RouteResults and do not abort the rest of the batch.
func (c *Client) AddRoutes(ctx context.Context, routes []domain.Route) ([]RouteResult, error) {
	if len(routes) == 0 {
		return nil, nil
	}

	batch := make([]rciCommand, len(routes))
	for i, r := range routes {
		batch[i].IP.Route = fromDomain(r)
	}

	var resp []rciRouteResponse
	if err := c.do(ctx, http.MethodPost, "/rci/", batch, &resp); err != nil {
		return nil, err
	}

	results := make([]RouteResult, len(routes))
	for i, r := range routes {
		results[i] = RouteResult{Route: r, OK: true}
		if i >= len(resp) {
			continue
		}
		for _, st := range resp[i].IP.Route.Status {
			if strings.EqualFold(st.Status, "error") {
				results[i].OK = false
				results[i].Message = st.Message
				break
			}
			if st.Message != "" {
				results[i].Message = st.Message
			}
		}
	}
	return results, nil
}

// RemoveRoutesByComment deletes every route whose comment starts with
// prefix and returns how many were removed. Zero matches is success.
func (c *Client) RemoveRoutesByComment(ctx context.Context, prefix string) (int, error) {
	routes, err := c.ListRoutes(ctx)
	if err != nil {
		return 0, err
	}

	var batch []rciCommand
	for _, r := range routes {
		if !strings.HasPrefix(r.Comment, prefix) {
			continue
		}
		p := fromDomain(r)
		p.No = true
		var cmd rciCommand
		cmd.IP.Route = p
		batch = append(batch, cmd)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	if err := c.do(ctx, http.MethodPost, "/rci/", batch, nil); err != nil {
		return 0, err
	}
	return len(batch), nil
}

// RemoveRoutes deletes the given routes in one batch call.
func (c *Client) RemoveRoutes(ctx context.Context, routes []domain.Route) error {
	if len(routes) == 0 {
		return nil
	}
	batch := make([]rciCommand, len(routes))
	for i, r := range routes {
		p := fromDomain(r)
		p.No = true
		batch[i].IP.Route = p
	}
	return c.do(ctx, http.MethodPost, "/rci/", batch, nil)
}
