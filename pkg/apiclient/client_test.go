package apiclient_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/frahmantamala/production-management/pkg/apiclient"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestAPIClient(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "API Client Suite")
}

// fakeAPI mimics the auth endpoints: rotating refresh tokens in a cookie and
// a single valid access token at a time.
type fakeAPI struct {
	mu            sync.Mutex
	access        string
	refresh       string
	generation    int
	refreshCalls  int
	refreshStatus int
	revoked       []string
}

func (f *fakeAPI) rotate(w http.ResponseWriter) {
	f.generation++
	f.access = fmt.Sprintf("a%d", f.generation)
	f.refresh = fmt.Sprintf("r%d", f.generation)
	http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: f.refresh, HttpOnly: true})
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": f.access,
		"token_type":   "Bearer",
		"expires_at":   time.Now().Add(time.Minute),
		"user":         map[string]any{"id": 1, "login": "admin"},
	})
}

func (f *fakeAPI) expireAccess() {
	f.mu.Lock()
	f.access = "expired-on-server"
	f.mu.Unlock()
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)

	switch r.URL.Path {
	case "/api/v1/auth/login":
		f.mu.Lock()
		defer f.mu.Unlock()
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":401,"error_code":"INVALID_CREDENTIALS","message":"invalid credentials"}`))
			return
		}
		f.rotate(w)

	case "/api/v1/auth/refresh-token":
		time.Sleep(20 * time.Millisecond)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.refreshCalls++
		if f.refreshStatus != 0 {
			w.WriteHeader(f.refreshStatus)
			_, _ = w.Write([]byte(`{"message":"nope"}`))
			return
		}
		if body["refresh_token"] != f.refresh {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.rotate(w)

	case "/api/v1/auth/logout":
		f.mu.Lock()
		f.revoked = append(f.revoked, body["refresh_token"])
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)

	case "/api/v1/auth/me":
		f.mu.Lock()
		ok := r.Header.Get("Authorization") == "Bearer "+f.access
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":1,"login":"admin","is_superuser":true,"permissions":{"users.read":3}}`))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

var _ = Describe("Client", func() {
	var (
		ctx    context.Context
		api    *fakeAPI
		server *httptest.Server
		store  *apiclient.MemoryStore
		client *apiclient.Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		api = &fakeAPI{}
		server = httptest.NewServer(api)
		store = apiclient.NewMemoryStore()
		client = apiclient.New(server.URL, store)
	})

	AfterEach(func() {
		server.Close()
	})

	login := func() {
		profile, err := client.Login(ctx, "admin", "secret")
		Expect(err).NotTo(HaveOccurred())
		Expect(profile.Login).To(Equal("admin"))
	}

	It("stores the session on login", func() {
		login()
		tokens, ok := store.Load()
		Expect(ok).To(BeTrue())
		Expect(tokens.AccessToken).To(Equal("a1"))
		Expect(tokens.RefreshToken).To(Equal("r1"))

		me, err := client.Me(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(me.IsSuperuser).To(BeTrue())
		Expect(me.Permissions).To(HaveKeyWithValue("users.read", 3))
	})

	It("surfaces the server error on bad credentials", func() {
		_, err := client.Login(ctx, "admin", "wrong")
		var apiErr *apiclient.APIError
		Expect(err).To(BeAssignableToTypeOf(apiErr))
		Expect(err.(*apiclient.APIError).Code).To(Equal("INVALID_CREDENTIALS"))
		_, ok := store.Load()
		Expect(ok).To(BeFalse())
	})

	It("requires a session for authenticated calls", func() {
		_, err := client.Me(ctx)
		Expect(err).To(MatchError(apiclient.ErrNotLoggedIn))
	})

	It("refreshes once on 401 and retries the request", func() {
		login()
		api.expireAccess()

		me, err := client.Me(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(me.ID).To(Equal(int64(1)))

		tokens, _ := store.Load()
		Expect(tokens.AccessToken).To(Equal("a2"))
		Expect(tokens.RefreshToken).To(Equal("r2"))
		Expect(api.refreshCalls).To(Equal(1))
	})

	It("shares one refresh between concurrent callers", func() {
		login()
		api.expireAccess()

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := client.Me(ctx)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			Expect(err).NotTo(HaveOccurred())
		}
		api.mu.Lock()
		defer api.mu.Unlock()
		Expect(api.refreshCalls).To(Equal(1))
	})

	It("expires the session when the refresh token is rejected", func() {
		login()
		api.expireAccess()
		api.mu.Lock()
		api.refreshStatus = http.StatusUnauthorized
		api.mu.Unlock()

		_, err := client.Me(ctx)
		Expect(err).To(MatchError(apiclient.ErrSessionExpired))
		_, ok := store.Load()
		Expect(ok).To(BeFalse())
	})

	It("gives up after repeated refresh failures", func() {
		login()
		api.expireAccess()
		api.mu.Lock()
		api.refreshStatus = http.StatusServiceUnavailable
		api.mu.Unlock()

		for i := 1; i < apiclient.MaxRefreshAttempts; i++ {
			_, err := client.Me(ctx)
			Expect(err).To(HaveOccurred())
			Expect(err).NotTo(MatchError(apiclient.ErrSessionExpired))
		}
		_, err := client.Me(ctx)
		Expect(err).To(MatchError(apiclient.ErrSessionExpired))
		Expect(api.refreshCalls).To(Equal(apiclient.MaxRefreshAttempts))
	})

	It("revokes the refresh token and clears the store on logout", func() {
		login()
		Expect(client.Logout(ctx)).To(Succeed())
		Expect(api.revoked).To(Equal([]string{"r1"}))
		_, ok := store.Load()
		Expect(ok).To(BeFalse())
	})
})
