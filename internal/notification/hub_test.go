package notification_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/frahmantamala/production-management/internal/auth"
	"github.com/frahmantamala/production-management/internal/notification"
	"github.com/frahmantamala/production-management/internal/permission"
	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type stubTokens map[string]int64

func (t stubTokens) ValidateAccessToken(token string) (*auth.Claims, error) {
	id, ok := t[token]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return &auth.Claims{UserID: id, TokenType: auth.TokenTypeAccess}, nil
}

// activeUsers resolves only the listed ids, like the permission resolver does
// for active accounts.
type activeUsers map[int64]bool

func (a activeUsers) Resolve(_ context.Context, userID int64) (*permission.Principal, error) {
	if !a[userID] {
		return nil, nil
	}
	return &permission.Principal{UserID: userID}, nil
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

var _ = Describe("Hub", func() {
	var (
		hub    *notification.Hub
		server *httptest.Server
		cancel context.CancelFunc
		conns  []*websocket.Conn
	)

	BeforeEach(func() {
		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		tokens := stubTokens{"alice": 1, "bob": 2, "carol": 3}
		hub = notification.NewHub(tokens, activeUsers{1: true, 2: true}, nil, quietLogger())
		go hub.Run(ctx)
		server = httptest.NewServer(http.HandlerFunc(hub.ServeWs))
		conns = nil
	})

	AfterEach(func() {
		for _, c := range conns {
			_ = c.Close()
		}
		server.Close()
		cancel()
	})

	dial := func(token string) (*websocket.Conn, *http.Response, error) {
		url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?token=" + token
		conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if conn != nil {
			conns = append(conns, conn)
		}
		return conn, resp, err
	}

	read := func(conn *websocket.Conn) frame {
		var f frame
		Expect(conn.SetReadDeadline(time.Now().Add(2 * time.Second))).To(Succeed())
		Expect(conn.ReadJSON(&f)).To(Succeed())
		return f
	}

	onlineIDs := func(f frame) []int64 {
		Expect(f.Event).To(Equal(notification.EventOnlineUsers))
		var ids []int64
		Expect(json.Unmarshal(f.Data, &ids)).To(Succeed())
		return ids
	}

	It("rejects a handshake without a valid token", func() {
		_, resp, err := dial("mallory")
		Expect(err).To(HaveOccurred())
		Expect(resp).NotTo(BeNil())
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
	})

	It("rejects a valid token whose user is no longer active", func() {
		_, resp, err := dial("carol")
		Expect(err).To(HaveOccurred())
		Expect(resp).NotTo(BeNil())
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(hub.OnlineUsers()).To(BeEmpty())
	})

	It("announces online users and routes frames by user", func() {
		alice, _, err := dial("alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(onlineIDs(read(alice))).To(Equal([]int64{1}))

		bob, _, err := dial("bob")
		Expect(err).NotTo(HaveOccurred())
		Expect(onlineIDs(read(alice))).To(Equal([]int64{1, 2}))
		Expect(onlineIDs(read(bob))).To(Equal([]int64{1, 2}))
		Expect(hub.OnlineUsers()).To(Equal([]int64{1, 2}))

		Expect(hub.SendToUser(2, notification.Message{Event: notification.UserEvent(2), Data: "for bob"})).To(Succeed())
		Expect(hub.Broadcast(notification.Message{Event: notification.EventStockLow, Data: "everyone"})).To(Succeed())

		Expect(read(bob).Event).To(Equal(notification.UserEvent(2)))
		Expect(read(bob).Event).To(Equal(notification.EventStockLow))
		Expect(read(alice).Event).To(Equal(notification.EventStockLow))
	})

	It("drops a user from the online list when they disconnect", func() {
		alice, _, err := dial("alice")
		Expect(err).NotTo(HaveOccurred())
		read(alice)

		bob, _, err := dial("bob")
		Expect(err).NotTo(HaveOccurred())
		read(alice)
		read(bob)

		Expect(bob.Close()).To(Succeed())
		Expect(onlineIDs(read(alice))).To(Equal([]int64{1}))
		Eventually(hub.OnlineUsers).Should(Equal([]int64{1}))
	})
})
