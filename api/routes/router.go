package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talrozen/courierdesk-backend/api/controllers"
	"github.com/talrozen/courierdesk-backend/api/middleware"
	"github.com/talrozen/courierdesk-backend/internal/audit"
	"github.com/talrozen/courierdesk-backend/internal/drivers"
	"github.com/talrozen/courierdesk-backend/internal/inventory"
	"github.com/talrozen/courierdesk-backend/internal/marketplace"
	"github.com/talrozen/courierdesk-backend/internal/orders"
	"github.com/talrozen/courierdesk-backend/internal/restock"
	"github.com/talrozen/courierdesk-backend/pkg/config"
	"github.com/talrozen/courierdesk-backend/pkg/enums"
	"github.com/talrozen/courierdesk-backend/pkg/logger"
	pkgredis "github.com/talrozen/courierdesk-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	health map[string]controllers.Pinger,
	redisClient *pkgredis.Client,
	auditSvc audit.Service,
	inventorySvc inventory.Service,
	restockSvc restock.Service,
	ordersSvc orders.Service,
	marketplaceSvc marketplace.Service,
	driversSvc drivers.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, health))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/", controllers.StockList(inventorySvc, logg))
			r.Get("/{productId}", controllers.StockDetail(inventorySvc, logg))
			r.Get("/{productId}/history", controllers.StockHistory(auditSvc, logg))
			r.Put("/{productId}/threshold", controllers.SetLowStockThreshold(inventorySvc, logg))
			r.Post("/transfer", controllers.TransferStock(inventorySvc, logg))
			r.Post("/adjust", controllers.AdjustStock(inventorySvc, logg))
			r.Get("/alerts/low-stock", controllers.LowStockAlerts(inventorySvc, logg))
		})

		r.Route("/restock", func(r chi.Router) {
			r.Post("/", controllers.SubmitRestock(restockSvc, logg))
			r.Get("/", controllers.RestockList(restockSvc, logg))
			r.Get("/{requestId}", controllers.RestockDetail(restockSvc, logg))
			r.Post("/{requestId}/approve", controllers.ApproveRestock(restockSvc, logg))
			r.Post("/{requestId}/fulfill", controllers.FulfillRestock(restockSvc, logg))
			r.Post("/{requestId}/reject", controllers.RejectRestock(restockSvc, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(ordersSvc, logg))
			r.Get("/", controllers.OrderList(ordersSvc, logg))
			r.Get("/{orderId}", controllers.OrderDetail(ordersSvc, logg))
			r.Post("/{orderId}/cancel", controllers.CancelOrder(ordersSvc, logg))
			r.Patch("/{orderId}/status", controllers.UpdateOrderStatus(ordersSvc, logg))
			r.Post("/{orderId}/assign", controllers.AssignOrderDriver(ordersSvc, logg))
		})

		r.Route("/listings", func(r chi.Router) {
			r.Post("/", controllers.PublishListing(marketplaceSvc, logg))
			r.Get("/", controllers.OpenListings(marketplaceSvc, logg))
			r.Get("/{listingId}/responses", controllers.ListingResponses(marketplaceSvc, logg))
			r.Post("/{listingId}/accept", controllers.AcceptListing(marketplaceSvc, logg))
			r.Post("/{listingId}/decline", controllers.DeclineListing(marketplaceSvc, logg))
		})

		r.Route("/drivers", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(string(enums.RoleDriver), logg))
				r.Post("/heartbeat", controllers.DriverHeartbeat(driversSvc, logg))
				r.Put("/availability", controllers.DriverSetAvailability(driversSvc, logg))
			})
			r.Get("/available", controllers.AvailableDrivers(driversSvc, logg))
			r.Get("/{driverId}/status", controllers.DriverStatus(driversSvc, logg))
			r.Get("/{driverId}/holdings", controllers.DriverHoldings(driversSvc, logg))
		})
	})

	return r
}
