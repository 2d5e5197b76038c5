package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/aquaice/livesync/internal/events"
)

// ListOrders fetches one page of orders matching filter.
func (c *Client) ListOrders(ctx context.Context, filter OrderFilter) (*OrdersPage, error) {
	var page OrdersPage
	if err := c.get(ctx, "/orders", filter.Query(), &page); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return &page, nil
}

// GetOrder fetches one order by id.
func (c *Client) GetOrder(ctx context.Context, id int64) (*events.Order, error) {
	var resp orderResponse
	if err := c.get(ctx, "/orders/"+strconv.FormatInt(id, 10), nil, &resp); err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	return &resp.Data, nil
}

// GetOrderByTracking fetches one order by tracking code.
func (c *Client) GetOrderByTracking(ctx context.Context, code string) (*events.Order, error) {
	var resp orderResponse
	if err := c.get(ctx, "/orders/track/"+url.PathEscape(code), nil, &resp); err != nil {
		return nil, fmt.Errorf("get order %s: %w", code, err)
	}
	return &resp.Data, nil
}

// GetOrderStats fetches the order counters.
func (c *Client) GetOrderStats(ctx context.Context) (*OrderStats, error) {
	var resp statsResponse
	if err := c.get(ctx, "/orders/stats", nil, &resp); err != nil {
		return nil, fmt.Errorf("get order stats: %w", err)
	}
	return &resp.Data, nil
}

// GetDashboard fetches the dashboard summary.
func (c *Client) GetDashboard(ctx context.Context) (*Dashboard, error) {
	var resp dashboardResponse
	if err := c.get(ctx, "/orders/dashboard", nil, &resp); err != nil {
		return nil, fmt.Errorf("get dashboard: %w", err)
	}
	return &resp.Data, nil
}

// Fetchers adapt the client to cache fetch functions.

// OrderListFetcher fetches the list for filter.
func (c *Client) OrderListFetcher(filter OrderFilter) func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) { return c.ListOrders(ctx, filter) }
}

// OrderFetcher fetches one order.
func (c *Client) OrderFetcher(id int64) func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) { return c.GetOrder(ctx, id) }
}

// OrderStatsFetcher fetches the counters.
func (c *Client) OrderStatsFetcher() func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) { return c.GetOrderStats(ctx) }
}

// DashboardFetcher fetches the dashboard.
func (c *Client) DashboardFetcher() func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) { return c.GetDashboard(ctx) }
}
