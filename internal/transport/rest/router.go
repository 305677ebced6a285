package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/production-management/api"
	"github.com/frahmantamala/production-management/internal/audit"
	"github.com/frahmantamala/production-management/internal/auth"
	"github.com/frahmantamala/production-management/internal/dashboard"
	"github.com/frahmantamala/production-management/internal/inventory"
	"github.com/frahmantamala/production-management/internal/notification"
	"github.com/frahmantamala/production-management/internal/permission"
	"github.com/frahmantamala/production-management/internal/production"
	"github.com/frahmantamala/production-management/internal/role"
	"github.com/frahmantamala/production-management/internal/transport/middleware"
	"github.com/frahmantamala/production-management/internal/transport/swagger"
	"github.com/frahmantamala/production-management/internal/user"
	"github.com/go-chi/chi"
)

// Handlers groups the HTTP handlers mounted under /api/v1. A nil handler
// leaves its routes out.
type Handlers struct {
	Auth         *auth.Handler
	RBAC         *auth.RBACAuthorization
	User         *user.Handler
	Role         *role.Handler
	Inventory    *inventory.Handler
	Production   *production.Handler
	Notification *notification.Handler
	Audit        *audit.Handler
	Dashboard    *dashboard.Handler
	Hub          *notification.Hub
}

type Options struct {
	Logger         *slog.Logger
	Origins        []string
	Health         *HealthHandler
	Metrics        *middleware.HTTPMetrics
	MetricsPath    string
	MetricsHandler http.Handler
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, opts Options) {
	// Apply global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.CORS(opts.Origins))
	router.Use(middleware.RecoveryMiddleware(opts.Logger))
	if opts.Metrics != nil {
		router.Use(opts.Metrics.Middleware)
	}
	router.Use(middleware.LoggingMiddleware(opts.Logger))

	// Serve the OpenAPI document at root (outside API prefix)
	router.Get(swagger.DocumentPath, api.Handler().ServeHTTP)
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler(swagger.DocumentPath))

	if opts.MetricsHandler != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, opts.MetricsHandler)
	}

	if h.Hub != nil {
		router.Get("/ws", h.Hub.ServeWs)
	}

	view := permission.LevelView

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		if opts.Health != nil {
			r.Get("/health", opts.Health.healthCheckHandler)
			r.Get("/ping", opts.Health.pingHandler)
		}

		if h.Auth == nil {
			return
		}

		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/login", h.Auth.Login)
			sr.Post("/refresh-token", h.Auth.RefreshToken)
			sr.Post("/refresh", h.Auth.RefreshToken)
			sr.Post("/logout", h.Auth.Logout)
			sr.With(h.Auth.AuthMiddleware).Get("/me", h.Auth.Me)
		})

		rbac := h.RBAC
		if rbac == nil {
			rbac = auth.NewRBACAuthorization(opts.Logger)
		}
		require := func(module, action string) func(http.Handler) http.Handler {
			return rbac.Require(module, action, view)
		}

		// Protected routes that require authentication
		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			if h.User != nil {
				pr.Route("/users", func(ur chi.Router) {
					ur.With(require(permission.ModuleUsers, permission.ActionRead)).Get("/", h.User.ListUsers)
					ur.With(require(permission.ModuleUsers, permission.ActionCreate)).Post("/", h.User.CreateUser)
					ur.With(require(permission.ModuleUsers, permission.ActionRead)).Get("/{id}", h.User.GetUser)
					ur.With(require(permission.ModuleUsers, permission.ActionUpdate)).Put("/{id}", h.User.UpdateUser)
					ur.With(require(permission.ModuleUsers, permission.ActionDelete)).Delete("/{id}", h.User.DeleteUser)
					ur.Put("/{id}/password", h.User.ChangePassword)
				})
			}

			if h.Role != nil {
				pr.Route("/roles", func(rr chi.Router) {
					rr.With(require(permission.ModuleRoles, permission.ActionRead)).Get("/", h.Role.ListRoles)
					// role editors need the catalog even without roles.read
					rr.With(rbac.RequireAny(view,
						permission.Key(permission.ModuleRoles, permission.ActionRead),
						permission.Key(permission.ModuleRoles, permission.ActionCreate),
						permission.Key(permission.ModuleRoles, permission.ActionUpdate),
					)).Get("/permissions", h.Role.GetAllPermissions)
					rr.With(require(permission.ModuleRoles, permission.ActionCreate)).Post("/", h.Role.CreateRole)
					rr.With(require(permission.ModuleRoles, permission.ActionRead)).Get("/{id}", h.Role.GetRole)
					rr.With(require(permission.ModuleRoles, permission.ActionUpdate)).Put("/{id}", h.Role.UpdateRole)
					rr.With(require(permission.ModuleRoles, permission.ActionDelete)).Delete("/{id}", h.Role.DeleteRole)
				})
			}

			if h.Inventory != nil {
				pr.Route("/inventory", func(ir chi.Router) {
					ir.Group(func(read chi.Router) {
						read.Use(require(permission.ModuleInventory, permission.ActionRead))
						read.Get("/items", h.Inventory.ListItems)
						read.Get("/items/barcode/{barcode}", h.Inventory.GetItemByBarcode)
						read.Get("/items/{id}", h.Inventory.GetItem)
						read.Get("/items/{id}/transactions", h.Inventory.ItemTransactions)
						read.Get("/transactions/all", h.Inventory.ListTransactions)
					})
					ir.With(require(permission.ModuleInventory, permission.ActionCreate)).Post("/items", h.Inventory.CreateItem)
					ir.With(require(permission.ModuleInventory, permission.ActionUpdate)).Put("/items/{id}", h.Inventory.UpdateItem)
					ir.With(require(permission.ModuleInventory, permission.ActionDelete)).Delete("/items/{id}", h.Inventory.DeleteItem)

					// The service enforces the per-type stock level.
					ir.Group(func(stock chi.Router) {
						stock.Use(require(permission.ModuleInventory, permission.ActionStock))
						stock.Post("/items/{id}/add", h.Inventory.AddStock)
						stock.Post("/items/{id}/remove", h.Inventory.RemoveStock)
						stock.Post("/items/{id}/transactions", h.Inventory.PostTransaction)
					})
				})
			}

			if h.Production != nil {
				pr.Route("/production/guides", func(gr chi.Router) {
					gr.With(require(permission.ModuleProduction, permission.ActionRead)).Get("/", h.Production.ListGuides)
					gr.With(require(permission.ModuleProduction, permission.ActionCreate)).Post("/", h.Production.CreateGuide)

					gr.Route("/{id}", func(one chi.Router) {
						one.With(require(permission.ModuleProduction, permission.ActionRead)).Get("/", h.Production.GetGuide)
						one.With(require(permission.ModuleProduction, permission.ActionRead)).Get("/inventory", h.Production.ListReservations)
						one.With(require(permission.ModuleProduction, permission.ActionDelete)).Delete("/", h.Production.DeleteGuide)
						one.With(require(permission.ModuleProduction, permission.ActionArchive)).Post("/archive", h.Production.Archive)
						one.With(require(permission.ModuleProduction, permission.ActionArchive)).Post("/restore", h.Production.Restore)
						one.With(require(permission.ModuleProduction, permission.ActionWithdraw)).Post("/withdraw-items", h.Production.WithdrawItems)

						one.Group(func(edit chi.Router) {
							edit.Use(require(permission.ModuleProduction, permission.ActionUpdate))
							edit.Put("/", h.Production.UpdateGuide)
							edit.Put("/assignees", h.Production.AssignUsers)
							edit.Post("/steps", h.Production.AddStep)
							edit.Put("/steps/order", h.Production.ReorderSteps)
							edit.Put("/steps/{stepId}", h.Production.UpdateStep)
							edit.Delete("/steps/{stepId}", h.Production.DeleteStep)
							edit.Post("/inventory", h.Production.AttachItem)
							edit.Delete("/inventory/{reservationId}", h.Production.ReleaseReservation)
						})

						one.Group(func(work chi.Router) {
							work.Use(require(permission.ModuleProduction, permission.ActionWork))
							work.Put("/steps/{stepId}/status", h.Production.SetStepStatus)
							work.Post("/steps/{stepId}/start", h.Production.StartWork)
							work.Post("/steps/{stepId}/stop", h.Production.StopWork)
							work.Post("/steps/{stepId}/work/start", h.Production.StartWork)
							work.Post("/steps/{stepId}/work/stop", h.Production.StopWork)
						})
					})
				})

				pr.Route("/production/templates", func(tr chi.Router) {
					tr.With(require(permission.ModuleTemplates, permission.ActionRead)).Get("/", h.Production.ListTemplates)
					tr.With(require(permission.ModuleTemplates, permission.ActionCreate)).Post("/", h.Production.CreateTemplate)
					tr.With(require(permission.ModuleTemplates, permission.ActionRead)).Get("/{id}", h.Production.GetTemplate)
					tr.With(require(permission.ModuleTemplates, permission.ActionDelete)).Delete("/{id}", h.Production.DeleteTemplate)
					tr.With(
						require(permission.ModuleTemplates, permission.ActionCreate),
						require(permission.ModuleProduction, permission.ActionCreate),
					).Post("/{id}/instantiate", h.Production.Instantiate)
				})
			}

			if h.Notification != nil {
				pr.Route("/notifications", func(nr chi.Router) {
					nr.Get("/", h.Notification.ListMine)
					nr.Get("/unread-count", h.Notification.UnreadCount)
					nr.Put("/read-all", h.Notification.MarkAllRead)
					nr.Put("/{id}/read", h.Notification.MarkRead)
					nr.With(require(permission.ModuleNotifications, permission.ActionSend)).Post("/", h.Notification.Schedule)
					nr.With(require(permission.ModuleNotifications, permission.ActionSend)).Post("/schedule", h.Notification.Schedule)
				})
			}

			if h.Audit != nil {
				pr.With(require(permission.ModuleAudit, permission.ActionRead)).Get("/audit-logs", h.Audit.ListAuditLogs)
			}

			if h.Dashboard != nil {
				pr.With(require(permission.ModuleDashboard, permission.ActionRead)).Get("/dashboard/stats", h.Dashboard.GetStats)
			}
		})
	})
}
