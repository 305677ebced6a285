package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/frahmantamala/production-management/internal/auth"
	"github.com/frahmantamala/production-management/internal/transport"
	"github.com/frahmantamala/production-management/internal/user"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Router", func() {
	var (
		router  *chi.Mux
		health  *HealthHandler
		cacheUp bool
	)

	BeforeEach(func() {
		lg := slog.New(slog.NewTextHandler(io.Discard, nil))
		cacheUp = true
		health = (&HealthHandler{checks: map[string]Check{}}).
			WithCheck("postgres", func(context.Context) error { return nil }).
			WithCheck("redis", func(context.Context) error {
				if cacheUp {
					return nil
				}
				return errors.New("connection refused")
			})

		router = chi.NewRouter()
		RegisterAllRoutes(router, Handlers{
			Auth: auth.NewHandler(nil, nil, nil, auth.CookieConfig{}),
			User: user.NewHandler(transport.NewBaseHandler(lg), nil),
		}, Options{Logger: lg, Health: health})
	})

	serve := func(method, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec
	}

	It("answers ping without authentication", func() {
		rec := serve(http.MethodGet, "/api/v1/ping")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"OK"`))
		Expect(rec.Header().Get("X-Request-ID")).NotTo(BeEmpty())
	})

	It("reports every component on the health endpoint", func() {
		rec := serve(http.MethodGet, "/api/v1/health")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var resp HealthResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Status).To(Equal(HealthHealthy))
		Expect(resp.Components).To(HaveKey("postgres"))
		Expect(resp.Components).To(HaveKey("redis"))
	})

	It("turns unhealthy when one component fails", func() {
		cacheUp = false
		rec := serve(http.MethodGet, "/api/v1/health")

		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
		var resp HealthResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Components["redis"].Status).To(Equal(HealthUnhealthy))
		Expect(resp.Components["redis"].Message).To(Equal("connection refused"))
		Expect(resp.Components["postgres"].Status).To(Equal(HealthHealthy))
	})

	It("rejects protected routes without a bearer token", func() {
		rec := serve(http.MethodGet, "/api/v1/users")

		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(rec.Body.String()).To(ContainSubstring("INVALID_TOKEN"))
	})

	It("leaves out routes whose handler is not configured", func() {
		rec := serve(http.MethodGet, "/api/v1/inventory/items")
		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("serves the OpenAPI document", func() {
		rec := serve(http.MethodGet, "/openapi.yml")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("openapi:"))
	})

	It("points Swagger UI at the served document", func() {
		rec := serve(http.MethodGet, "/swagger/index.html")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("/openapi.yml"))
	})
})
