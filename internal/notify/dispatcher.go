package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"wishbucket/internal/metrics"
	"wishbucket/internal/models"
)

// Sender delivers one notification to its recipient.
type Sender interface {
	Send(ctx context.Context, n *models.Notification) error
}

type Options struct {
	Workers      int
	PollInterval time.Duration
	MaxAttempts  int
	Lease        time.Duration
	BatchSize    int
	Retention    time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 5
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Lease <= 0 {
		o.Lease = time.Minute
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.Retention <= 0 {
		o.Retention = 90 * 24 * time.Hour
	}
	return o
}

// Dispatcher drains the notification outbox with a pool of workers.
type Dispatcher struct {
	db       *gorm.DB
	sender   Sender
	opts     Options
	jobQueue chan *models.Notification
	wake     chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewDispatcher(db *gorm.DB, sender Sender, opts Options) *Dispatcher {
	opts = opts.withDefaults()
	return &Dispatcher{
		db:       db,
		sender:   sender,
		opts:     opts,
		jobQueue: make(chan *models.Notification, opts.BatchSize),
		wake:     make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}
}

// SetSender swaps the delivery channel; call before Start.
func (d *Dispatcher) SetSender(sender Sender) {
	d.sender = sender
}

func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		for i := 0; i < d.opts.Workers; i++ {
			d.wg.Add(1)
			go d.worker()
		}
		d.wg.Add(2)
		go d.poll()
		go d.cleanup()
		log.WithField("workers", d.opts.Workers).Info("Notification dispatcher started")
	})
}

// Wake asks the poller to look at the outbox now instead of on the next tick.
func (d *Dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		log.Info("Stopping notification dispatcher...")
		close(d.stopChan)
		d.wg.Wait()
		log.Info("Notification dispatcher stopped")
	})
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case n := <-d.jobQueue:
			d.deliver(n)
		case <-d.stopChan:
			return
		}
	}
}

func (d *Dispatcher) poll() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	d.ProcessPending(context.Background())
	for {
		select {
		case <-ticker.C:
		case <-d.wake:
		case <-d.stopChan:
			return
		}
		d.ProcessPending(context.Background())
	}
}

// ProcessPending claims pending rows and hands them to the workers. It
// returns the number of rows queued.
func (d *Dispatcher) ProcessPending(ctx context.Context) int {
	d.releaseExpiredClaims(ctx)

	var pending []*models.Notification
	err := d.db.WithContext(ctx).
		Where("delivery_status = ?", models.DeliveryPending).
		Order("created_at").
		Limit(d.opts.BatchSize).
		Find(&pending).Error
	if err != nil {
		log.Errorf("Failed to fetch pending notifications: %v", err)
		return 0
	}

	queued := 0
	for _, n := range pending {
		if !d.claim(ctx, n) {
			continue
		}
		select {
		case d.jobQueue <- n:
			queued++
		case <-d.stopChan:
			d.release(ctx, n)
			return queued
		}
	}
	if queued > 0 {
		log.Debugf("Queued %d notifications for delivery", queued)
	}
	return queued
}

func (d *Dispatcher) claim(ctx context.Context, n *models.Notification) bool {
	now := time.Now()
	token := uuid.NewString()
	res := d.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND delivery_status = ?", n.ID, models.DeliveryPending).
		Updates(map[string]any{"delivery_status": models.DeliverySending, "claimed_at": now, "claim_token": token})
	if res.Error != nil {
		log.Errorf("Failed to claim notification %s: %v", n.ID, res.Error)
		return false
	}
	if res.RowsAffected != 1 {
		return false
	}
	n.ClaimToken = token
	n.ClaimedAt = &now
	return true
}

// owned narrows a query to n while its claim token is still the current one.
// A lease that ran out leaves the row pending with the same token, which still
// counts as ours until another dispatcher claims it.
func (d *Dispatcher) owned(ctx context.Context, n *models.Notification) *gorm.DB {
	return d.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND claim_token = ? AND delivery_status IN ?", n.ID, n.ClaimToken,
			[]models.DeliveryStatus{models.DeliverySending, models.DeliveryPending})
}

// renew refreshes the lease right before sending and reports whether the
// claim is still held.
func (d *Dispatcher) renew(ctx context.Context, n *models.Notification) bool {
	res := d.owned(ctx, n).
		Updates(map[string]any{"delivery_status": models.DeliverySending, "claimed_at": time.Now()})
	if res.Error != nil {
		log.Errorf("Failed to renew claim on notification %s: %v", n.ID, res.Error)
		return false
	}
	return res.RowsAffected == 1
}

func (d *Dispatcher) release(ctx context.Context, n *models.Notification) {
	err := d.owned(ctx, n).Update("delivery_status", models.DeliveryPending).Error
	if err != nil {
		log.Errorf("Failed to release notification %s: %v", n.ID, err)
	}
}

// releaseExpiredClaims returns rows left in "sending" by a crashed process.
func (d *Dispatcher) releaseExpiredClaims(ctx context.Context) {
	res := d.db.WithContext(ctx).Model(&models.Notification{}).
		Where("delivery_status = ? AND claimed_at < ?", models.DeliverySending, time.Now().Add(-d.opts.Lease)).
		Update("delivery_status", models.DeliveryPending)
	if res.Error != nil {
		log.Errorf("Failed to release expired claims: %v", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		log.Warnf("Released %d stale notification claims", res.RowsAffected)
	}
}

func (d *Dispatcher) deliver(n *models.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if !d.renew(ctx, n) {
		log.Debugf("Skipping delivery of %s: claim taken over", n.ID)
		return
	}

	if d.sender == nil {
		log.Debugf("Skipping delivery of %s: no sender configured", n.ID)
		d.markAsSent(ctx, n)
		return
	}

	if err := d.sender.Send(ctx, n); err != nil {
		log.WithFields(log.Fields{"notification": n.ID, "user": n.UserID}).Warnf("Delivery failed: %v", err)
		d.markAsFailed(ctx, n, err)
		return
	}
	d.markAsSent(ctx, n)
}

func (d *Dispatcher) markAsSent(ctx context.Context, n *models.Notification) {
	now := time.Now()
	res := d.owned(ctx, n).
		Updates(map[string]any{
			"delivery_status": models.DeliverySent,
			"sent_at":         now,
			"attempts":        gorm.Expr("attempts + 1"),
			"last_error":      "",
		})
	if res.Error != nil {
		log.Errorf("Failed to mark notification %s as sent: %v", n.ID, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		log.Warnf("Notification %s was claimed elsewhere before it could be marked sent", n.ID)
		return
	}
	metrics.NotificationsDispatched.WithLabelValues(string(models.DeliverySent)).Inc()
}

// markAsFailed puts the row back in the queue until MaxAttempts is reached.
func (d *Dispatcher) markAsFailed(ctx context.Context, n *models.Notification, cause error) {
	status := models.DeliveryPending
	if n.Attempts+1 >= d.opts.MaxAttempts {
		status = models.DeliveryFailed
	}
	reason := cause.Error()
	if len(reason) > 1000 {
		reason = reason[:1000]
	}

	res := d.owned(ctx, n).
		Updates(map[string]any{
			"delivery_status": status,
			"attempts":        gorm.Expr("attempts + 1"),
			"last_error":      reason,
		})
	if res.Error != nil {
		log.Errorf("Failed to mark notification %s as failed: %v", n.ID, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		log.Warnf("Notification %s was claimed elsewhere before its failure was recorded", n.ID)
		return
	}
	metrics.NotificationsDispatched.WithLabelValues(string(status)).Inc()
}

func (d *Dispatcher) cleanup() {
	defer d.wg.Done()
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.PerformCleanup(context.Background())
		case <-d.stopChan:
			return
		}
	}
}

// PerformCleanup deletes read notifications older than the retention window.
func (d *Dispatcher) PerformCleanup(ctx context.Context) int64 {
	res := d.db.WithContext(ctx).
		Where("read = ? AND read_at < ?", true, time.Now().Add(-d.opts.Retention)).
		Delete(&models.Notification{})
	if res.Error != nil {
		log.Errorf("Failed to cleanup old read notifications: %v", res.Error)
		return 0
	}
	if res.RowsAffected > 0 {
		log.Infof("Cleaned up %d old read notifications", res.RowsAffected)
	}
	return res.RowsAffected
}
