package api

import (
	"net/url"
	"strconv"

	"github.com/aquaice/livesync/internal/events"
)

// OrderFilter narrows GET /orders. Zero fields are omitted.
type OrderFilter struct {
	Search           string             `json:"search,omitempty"`
	Status           events.OrderStatus `json:"order_status,omitempty"`
	CustomerID       int64              `json:"customer_id,omitempty"`
	DeliveryDriverID int64              `json:"delivery_driver_id,omitempty"`
	VehicleID        int64              `json:"vehicle_id,omitempty"`
	StartDate        string             `json:"start_date,omitempty"`
	EndDate          string             `json:"end_date,omitempty"`
	ScheduledDate    string             `json:"scheduled_date,omitempty"`
	Limit            int                `json:"limit,omitempty"`
	Offset           int                `json:"offset,omitempty"`
	OrderBy          string             `json:"order_by,omitempty"`
	OrderDirection   string             `json:"order_direction,omitempty"` // ASC or DESC
}

// Query encodes the filter as query parameters.
func (f OrderFilter) Query() url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	setInt := func(k string, v int64) {
		if v != 0 {
			q.Set(k, strconv.FormatInt(v, 10))
		}
	}

	set("search", f.Search)
	set("order_status", string(f.Status))
	setInt("customer_id", f.CustomerID)
	setInt("delivery_driver_id", f.DeliveryDriverID)
	setInt("vehicle_id", f.VehicleID)
	set("start_date", f.StartDate)
	set("end_date", f.EndDate)
	set("scheduled_date", f.ScheduledDate)
	setInt("limit", int64(f.Limit))
	setInt("offset", int64(f.Offset))
	set("order_by", f.OrderBy)
	set("order_direction", f.OrderDirection)
	return q
}

// Pagination from list responses.
type Pagination struct {
	Total  int  `json:"total"`
	Limit  *int `json:"limit"`
	Offset int  `json:"offset"`
}

// OrdersPage from GET /orders.
type OrdersPage struct {
	Orders     []events.Order `json:"data"`
	Pagination Pagination     `json:"pagination"`
}

// orderResponse from GET /orders/{id} and /orders/track/{code}.
type orderResponse struct {
	Data events.Order `json:"data"`
}

// WeekdayCount is the number of orders per day of week.
type WeekdayCount struct {
	Weekday int `json:"dia_semana"`
	Count   int `json:"cantidad"`
}

// PopularProduct is a product ranked by ordered quantity.
type PopularProduct struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"cantidad_total"`
}

// OrderStats from GET /orders/stats.
type OrderStats struct {
	Total           int              `json:"total_pedidos"`
	Pending         int              `json:"pedidos_pendientes"`
	Preparing       int              `json:"pedidos_preparando"`
	Dispatched      int              `json:"pedidos_despachados"`
	Delivered       int              `json:"pedidos_entregados"`
	Cancelled       int              `json:"pedidos_cancelados"`
	UniqueCustomers int              `json:"clientes_unicos"`
	ByWeekday       []WeekdayCount   `json:"por_dia_semana,omitempty"`
	PopularProducts []PopularProduct `json:"productos_populares,omitempty"`
}

type statsResponse struct {
	Data OrderStats `json:"data"`
}

// StatusCount is the number of orders in one status.
type StatusCount struct {
	Status events.OrderStatus `json:"order_status"`
	Count  int                `json:"count"`
}

// DailyTotal is the number of orders on one date.
type DailyTotal struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Dashboard from GET /orders/dashboard.
type Dashboard struct {
	RecentOrders   []events.Order `json:"recent_orders"`
	StatusCounts   []StatusCount  `json:"status_counts"`
	TodayScheduled int            `json:"today_scheduled"`
	DailyTotals    []DailyTotal   `json:"daily_totals"`
}

type dashboardResponse struct {
	Data Dashboard `json:"data"`
}
