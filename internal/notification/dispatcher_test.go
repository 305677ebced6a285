package notification_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/frahmantamala/production-management/internal/notification"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type recordingPusher struct {
	mu      sync.Mutex
	pushed  map[int64][]notification.Message
	blocker chan struct{}
}

func (p *recordingPusher) SendToUser(userID int64, msg notification.Message) error {
	if p.blocker != nil {
		<-p.blocker
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pushed == nil {
		p.pushed = make(map[int64][]notification.Message)
	}
	p.pushed[userID] = append(p.pushed[userID], msg)
	return nil
}

func (p *recordingPusher) count(userID int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushed[userID])
}

type countingSource struct {
	calls atomic.Int32
}

func (s *countingSource) DeliverDue(context.Context) (int, error) {
	s.calls.Add(1)
	return 0, nil
}

var _ = Describe("Dispatcher", func() {
	var (
		pusher     *recordingPusher
		dispatcher *notification.Dispatcher
	)

	AfterEach(func() {
		if dispatcher != nil {
			dispatcher.Shutdown()
		}
	})

	It("pushes to the recipient and posts the webhook", func() {
		var (
			mu       sync.Mutex
			received []notification.Message
		)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var msg notification.Message
			if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			mu.Lock()
			received = append(received, msg)
			mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		pusher = &recordingPusher{}
		dispatcher = notification.NewDispatcher(notification.DispatcherConfig{
			MaxWorkers:     2,
			JobQueueSize:   10,
			WebhookURL:     server.URL,
			WebhookTimeout: time.Second,
		}, pusher, quietLogger())

		Expect(dispatcher.Enqueue(notification.Notification{ID: 1, RecipientID: 42, Title: "Hi"})).To(Succeed())

		Eventually(func() int { return pusher.count(42) }).Should(Equal(1))
		Eventually(func() []string {
			mu.Lock()
			defer mu.Unlock()
			events := make([]string, 0, len(received))
			for _, m := range received {
				events = append(events, m.Event)
			}
			return events
		}).Should(ConsistOf(notification.UserEvent(42)))
	})

	It("refuses work once the queue is full", func() {
		pusher = &recordingPusher{blocker: make(chan struct{})}
		dispatcher = notification.NewDispatcher(notification.DispatcherConfig{MaxWorkers: 1, JobQueueSize: 1}, pusher, quietLogger())
		defer close(pusher.blocker)

		var full error
		for i := 0; i < 10 && full == nil; i++ {
			full = dispatcher.Enqueue(notification.Notification{ID: int64(i + 1), RecipientID: 1})
			if full == nil {
				time.Sleep(10 * time.Millisecond)
			}
		}
		Expect(errors.Is(full, notification.ErrQueueFull)).To(BeTrue())
	})

	It("rejects work after shutdown", func() {
		pusher = &recordingPusher{}
		dispatcher = notification.NewDispatcher(notification.DispatcherConfig{}, pusher, quietLogger())
		dispatcher.Shutdown()
		Expect(dispatcher.Enqueue(notification.Notification{ID: 1, RecipientID: 1})).NotTo(Succeed())
	})
})

var _ = Describe("RunPoller", func() {
	It("drains due notifications on every tick until cancelled", func() {
		source := &countingSource{}
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			notification.RunPoller(ctx, source, 10*time.Millisecond, quietLogger())
		}()

		Eventually(func() int32 { return source.calls.Load() }).Should(BeNumerically(">=", 2))
		cancel()
		Eventually(done).Should(BeClosed())
	})
})
