package activitypub

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/grovesocial/grove/db"
	"github.com/grovesocial/grove/domain"
	"github.com/grovesocial/grove/util"
	"golang.org/x/sync/errgroup"
)

// backoffMinutes is the retry schedule; attempts past the table reuse the
// last slot until the give-up threshold.
var backoffMinutes = []int{1, 5, 15, 60, 240, 1440}

func backoffFor(attempts int) time.Duration {
	idx := min(attempts-1, len(backoffMinutes)-1)
	return time.Duration(backoffMinutes[idx]) * time.Minute
}

// Deliverer drains the delivery queue. Destinations are independent:
// deliveries group by inbox, groups run in parallel, and items within a
// group go out in submission order so one slow instance never holds up
// the rest of the fediverse. Items queued by actor URI get their inbox
// resolved here, under the same backoff as the delivery itself.
type Deliverer struct {
	db        *db.DB
	directory *Directory
	conf      *util.FederationConfig
	client    *http.Client
}

func NewDeliverer(database *db.DB, directory *Directory, conf *util.FederationConfig) *Deliverer {
	return &Deliverer{
		db:        database,
		directory: directory,
		conf:      conf,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Start runs the delivery loop until the context ends.
func (d *Deliverer) Start(ctx context.Context) {
	log.Info("Starting delivery worker", "workers", d.conf.DeliveryWorkers)
	ticker := time.NewTicker(10 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.processQueue(ctx)
			}
		}
	}()
}

func (d *Deliverer) processQueue(ctx context.Context) {
	err, items := d.db.ReadPendingDeliveries(100)
	if err != nil {
		log.Error("Failed to read delivery queue", "err", err)
		return
	}
	if items == nil || len(*items) == 0 {
		return
	}

	// Queue rows come back ordered by (inbox, created_at), so grouping
	// preserves per-inbox submission order. Unresolved items group by
	// recipient so one unreachable actor never blocks another.
	groups := make(map[string][]domain.DeliveryQueueItem)
	var order []string
	for _, item := range *items {
		key := item.GroupKey()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], item)
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(d.conf.DeliveryWorkers)
	for _, key := range order {
		batch := groups[key]
		g.Go(func() error {
			d.deliverBatch(ctx, batch)
			return nil
		})
	}
	g.Wait()
}

// deliverBatch sends one inbox's items in order, stopping at the first
// failure so later activities never overtake an earlier one.
func (d *Deliverer) deliverBatch(ctx context.Context, batch []domain.DeliveryQueueItem) {
	for _, item := range batch {
		if err := d.deliver(ctx, &item); err != nil {
			item.Attempts++
			if item.Attempts >= d.conf.MaxDeliveryAttempts {
				log.Warn("Giving up on delivery", "destination", item.GroupKey(), "attempts", item.Attempts, "err", err)
				metricDeliveries.WithLabelValues("gave_up").Inc()
				d.db.DeleteDelivery(item.Id)
			} else {
				wait := backoffFor(item.Attempts)
				log.Info("Delivery failed, will retry", "destination", item.GroupKey(),
					"attempt", item.Attempts, "retryIn", wait, "err", err)
				metricDeliveries.WithLabelValues("retry").Inc()
				d.db.UpdateDeliveryAttempt(item.Id, item.Attempts, time.Now().Add(wait))
			}
			return
		}
		metricDeliveries.WithLabelValues("ok").Inc()
		d.db.DeleteDelivery(item.Id)
	}
}

// deliver signs and posts one activity to one inbox, resolving the
// recipient first when enqueue-time resolution failed.
func (d *Deliverer) deliver(ctx context.Context, item *domain.DeliveryQueueItem) error {
	if item.InboxURI == "" {
		actor, err := d.directory.GetOrFetch(ctx, item.RecipientURI)
		if err != nil {
			return fmt.Errorf("recipient %s unresolvable: %w", item.RecipientURI, err)
		}
		if actor.IsLocal {
			return nil
		}
		item.InboxURI = actor.BestInbox(d.conf.PreferSharedInbox)
	}

	err, signer := d.db.ReadActorById(item.KeyOwnerId)
	if err != nil {
		return fmt.Errorf("signing actor %s unavailable: %w", item.KeyOwnerId, err)
	}

	body := []byte(item.ActivityJSON)
	hash := sha256.Sum256(body)
	digest := "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])

	req, err := http.NewRequestWithContext(ctx, "POST", item.InboxURI, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.UserAgent())
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("Digest", digest)

	privateKey, err := ParsePrivateKey(signer.PrivateKeyPem)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}
	if err := SignRequest(req, privateKey, signer.KeyId()); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s answered %d", ErrDeliveryFailed, item.InboxURI, resp.StatusCode)
	}
	return nil
}
