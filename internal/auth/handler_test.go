package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/frahmantamala/production-management/internal"
	"github.com/frahmantamala/production-management/internal/auth"
	"github.com/frahmantamala/production-management/internal/core/database/dbtest"
	"github.com/frahmantamala/production-management/internal/permission"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type stubResolver struct {
	principals map[int64]*permission.Principal
}

func (s *stubResolver) Resolve(_ context.Context, userID int64) (*permission.Principal, error) {
	return s.principals[userID], nil
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

var _ = Describe("Auth Handler", func() {
	var (
		handler  *auth.Handler
		service  *auth.Service
		resolver *stubResolver
		userID   int64
	)

	BeforeEach(func() {
		db, err := dbtest.Open()
		Expect(err).NotTo(HaveOccurred())
		service, _ = newService(db)
		userID = insertUser(db, "carol", true).ID
		resolver = &stubResolver{principals: map[int64]*permission.Principal{
			userID: {UserID: userID, Permissions: permission.Set{"inventory.stock": permission.LevelEdit}},
		}}
		handler = auth.NewHandler(service, stubProfiles{}, resolver, auth.CookieConfig{Path: "/api/v1/auth"})
	})

	login := func() *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{"login": "carol", "password": "correct_password"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		handler.Login(rec, req)
		return rec
	}

	It("sets an HTTP-only refresh cookie on login and keeps it out of the body", func() {
		rec := login()

		Expect(rec.Code).To(Equal(http.StatusOK))
		cookie := findCookie(rec, auth.RefreshCookieName)
		Expect(cookie).NotTo(BeNil())
		Expect(cookie.HttpOnly).To(BeTrue())
		Expect(cookie.Path).To(Equal("/api/v1/auth"))
		Expect(rec.Body.String()).To(ContainSubstring("access_token"))
		Expect(rec.Body.String()).NotTo(ContainSubstring(cookie.Value))
	})

	It("answers a bad password with 401", func() {
		body, _ := json.Marshal(map[string]string{"login": "carol", "password": "wrong"})
		rec := httptest.NewRecorder()
		handler.Login(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body)))

		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(rec.Body.String()).To(ContainSubstring(string(internal.ErrCodeInvalidCredentials)))
	})

	It("refreshes from the cookie and clears it on logout", func() {
		cookie := findCookie(login(), auth.RefreshCookieName)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh-token", nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		handler.RefreshToken(rec, req)
		Expect(rec.Code).To(Equal(http.StatusOK))
		rotated := findCookie(rec, auth.RefreshCookieName)
		Expect(rotated.Value).NotTo(Equal(cookie.Value))

		req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
		req.AddCookie(rotated)
		rec = httptest.NewRecorder()
		handler.Logout(rec, req)
		Expect(rec.Code).To(Equal(http.StatusNoContent))
		Expect(findCookie(rec, auth.RefreshCookieName).MaxAge).To(BeNumerically("<", 0))
	})

	Describe("AuthMiddleware", func() {
		var reached *permission.Principal

		protected := func() http.Handler {
			return handler.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = permission.FromContext(r.Context())
				Expect(internal.UserIDFromContext(r.Context())).To(Equal(reached.UserID))
				w.WriteHeader(http.StatusOK)
			}))
		}

		BeforeEach(func() { reached = nil })

		It("stores the principal for a valid token", func() {
			var session auth.Session
			Expect(json.Unmarshal(login().Body.Bytes(), &session)).To(Succeed())

			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
			req.Header.Set("Authorization", "Bearer "+session.AccessToken)
			rec := httptest.NewRecorder()
			protected().ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(reached).NotTo(BeNil())
			Expect(reached.UserID).To(Equal(userID))
		})

		It("rejects a missing token", func() {
			rec := httptest.NewRecorder()
			protected().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(reached).To(BeNil())
		})

		It("rejects users that no longer resolve", func() {
			var session auth.Session
			Expect(json.Unmarshal(login().Body.Bytes(), &session)).To(Succeed())
			delete(resolver.principals, userID)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+session.AccessToken)
			rec := httptest.NewRecorder()
			protected().ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("RBACAuthorization", func() {
		var rbac *auth.RBACAuthorization

		serve := func(mw func(http.Handler) http.Handler, p *permission.Principal) int {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if p != nil {
				req = req.WithContext(permission.WithPrincipal(req.Context(), p))
			}
			rec := httptest.NewRecorder()
			mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})).ServeHTTP(rec, req)
			return rec.Code
		}

		BeforeEach(func() { rbac = auth.NewRBACAuthorization(testLogger()) })

		It("allows callers at or above the required level", func() {
			p := &permission.Principal{UserID: 1, Permissions: permission.Set{"inventory.stock": permission.LevelEdit}}
			Expect(serve(rbac.Require(permission.ModuleInventory, permission.ActionStock, permission.LevelEdit), p)).To(Equal(http.StatusNoContent))
			Expect(serve(rbac.Require(permission.ModuleInventory, permission.ActionStock, permission.LevelFull), p)).To(Equal(http.StatusForbidden))
		})

		It("lets superusers through every gate", func() {
			p := &permission.Principal{UserID: 1, Superuser: true}
			Expect(serve(rbac.Require(permission.ModuleRoles, permission.ActionDelete, permission.LevelFull), p)).To(Equal(http.StatusNoContent))
		})

		It("accepts any of several keys", func() {
			p := &permission.Principal{UserID: 1, Permissions: permission.Set{"production.work": permission.LevelView}}
			mw := rbac.RequireAny(permission.LevelView, "production.update", "production.work")
			Expect(serve(mw, p)).To(Equal(http.StatusNoContent))

			other := &permission.Principal{UserID: 2, Permissions: permission.Set{"production.read": permission.LevelFull}}
			Expect(serve(mw, other)).To(Equal(http.StatusForbidden))
		})

		It("answers 401 without a principal", func() {
			Expect(serve(rbac.Require(permission.ModuleUsers, permission.ActionRead, permission.LevelView), nil)).To(Equal(http.StatusUnauthorized))
		})
	})
})
