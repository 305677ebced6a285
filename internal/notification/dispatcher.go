package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ErrQueueFull is returned by Enqueue when every slot of the job queue is
// taken.
var ErrQueueFull = errors.New("notification queue full")

// Pusher delivers a frame to every socket of one user.
type Pusher interface {
	SendToUser(userID int64, msg Message) error
}

type Worker struct {
	ID         int
	WorkerPool chan chan Notification
	JobChannel chan Notification
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan Notification, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Notification),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, process func(Notification)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-ctx.Done():
				return
			}

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker delivering notification", "worker_id", w.ID, "notification_id", job.ID)
				process(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type DispatcherConfig struct {
	MaxWorkers     int
	JobQueueSize   int
	WebhookURL     string
	WebhookTimeout time.Duration
}

// Dispatcher pushes notifications to connected sockets and, when configured,
// POSTs them to a webhook. Delivery is best-effort: failures are logged and
// never retried.
type Dispatcher struct {
	pusher     Pusher
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger

	jobQueue   chan Notification
	workerPool chan chan Notification
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
	stopOnce   sync.Once
}

func NewDispatcher(config DispatcherConfig, pusher Pusher, logger *slog.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	queueSize := config.JobQueueSize
	if queueSize <= 0 {
		queueSize = 100
	}
	timeout := config.WebhookTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	d := &Dispatcher{
		pusher:     pusher,
		webhookURL: config.WebhookURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		jobQueue:   make(chan Notification, queueSize),
		workerPool: make(chan chan Notification, maxWorkers),
		maxWorkers: maxWorkers,
		ctx:        ctx,
		cancel:     cancel,
	}
	d.start()
	return d
}

func (d *Dispatcher) start() {
	d.once.Do(func() {
		for i := 0; i < d.maxWorkers; i++ {
			NewWorker(i, d.workerPool, d.logger).Start(d.ctx, &d.wg, d.process)
		}

		d.wg.Add(1)
		go d.dispatch()

		d.logger.Info("notification dispatcher started",
			"max_workers", d.maxWorkers,
			"queue_size", cap(d.jobQueue),
			"webhook", d.webhookURL != "")
	})
}

func (d *Dispatcher) dispatch() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.jobQueue:
			select {
			case jobChannel := <-d.workerPool:
				select {
				case jobChannel <- job:
				case <-d.ctx.Done():
					return
				}
			case <-d.ctx.Done():
				return
			}
		case <-d.ctx.Done():
			d.logger.Info("notification dispatcher shutting down")
			return
		}
	}
}

// Enqueue never blocks; a full queue returns ErrQueueFull and the caller
// leaves the row for the poller.
func (d *Dispatcher) Enqueue(n Notification) error {
	select {
	case <-d.ctx.Done():
		return errors.New("notification dispatcher stopped")
	default:
	}
	select {
	case d.jobQueue <- n:
		return nil
	default:
		d.logger.Warn("notification queue full", "notification_id", n.ID, "queue_capacity", cap(d.jobQueue))
		return ErrQueueFull
	}
}

func (d *Dispatcher) Shutdown() {
	d.stopOnce.Do(func() {
		d.logger.Info("shutting down notification dispatcher")
		d.cancel()
		d.wg.Wait()
		d.logger.Info("notification dispatcher shutdown complete")
	})
}

func (d *Dispatcher) process(n Notification) {
	if d.pusher != nil {
		if err := d.pusher.SendToUser(n.RecipientID, Message{Event: UserEvent(n.RecipientID), Data: n}); err != nil {
			d.logger.Warn("socket push failed", "notification_id", n.ID, "user_id", n.RecipientID, "error", err)
		}
	}
	if d.webhookURL != "" {
		if err := d.postWebhook(n); err != nil {
			d.logger.Warn("notification webhook failed", "notification_id", n.ID, "error", err)
		}
	}
}

func (d *Dispatcher) postWebhook(n Notification) error {
	body, err := json.Marshal(Message{Event: UserEvent(n.RecipientID), Data: n})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(d.ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	d.logger.Debug("notification webhook delivered", "notification_id", n.ID, "status_code", resp.StatusCode)
	return nil
}

// DueSource is what the poller drains on every tick.
type DueSource interface {
	DeliverDue(ctx context.Context) (int, error)
}

// RunPoller hands due scheduled notifications to the dispatcher every
// interval until ctx is done.
func RunPoller(ctx context.Context, source DueSource, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("notification poller started", "interval", interval)
	for {
		select {
		case <-ticker.C:
			n, err := source.DeliverDue(ctx)
			if err != nil {
				logger.Error("scheduled notification delivery failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("scheduled notifications delivered", "count", n)
			}
		case <-ctx.Done():
			logger.Info("notification poller stopped")
			return
		}
	}
}
