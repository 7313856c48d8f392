package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/qrtrack/qr-track/internal/filter"
	"github.com/qrtrack/qr-track/internal/guard"
	"github.com/qrtrack/qr-track/internal/keygen"
	"github.com/qrtrack/qr-track/internal/model"
	"github.com/qrtrack/qr-track/internal/style"
	"github.com/qrtrack/qr-track/internal/utils"
)

// insertRetries bounds how many times a generated key is re-drawn after
// losing the check-then-insert race to a concurrent writer.
const insertRetries = 3

// Store is the persistence boundary the tracker operates against. The
// GORM registry implements it in production; tests use an in-memory fake.
type Store interface {
	CreatePair(ctx context.Context, assoc *model.Association, stats *model.Stats) error
	KeyExists(ctx context.Context, key string) (bool, error)
	FindAssociation(ctx context.Context, key string) (*model.Association, error)
	FindStats(ctx context.Context, key string) (*model.Stats, error)
	ResolveAndRecord(ctx context.Context, key string, impressionID int64, at time.Time) (*model.Association, error)
	Impressions(ctx context.Context, statsID int64) ([]model.Impression, error)
	UpdateStyleConfig(ctx context.Context, key string, blob *string) error
	ResetImpressions(ctx context.Context, key string) error
	DeleteCascade(ctx context.Context, key string) error
	AllKeys(ctx context.Context) ([]string, error)
}

// StyleCache caches resolved style configs per key. Implementations must
// treat a miss as (nil, nil). May be nil, which disables caching.
type StyleCache interface {
	Get(ctx context.Context, key string) (map[string]string, error)
	Set(ctx context.Context, key string, resolved map[string]string) error
	Delete(ctx context.Context, key string) error
}

// Tracker implements the redirect-and-tracking domain logic.
type Tracker struct {
	store         Store
	gen           *keygen.Generator
	ids           *utils.IDSource
	cache         StyleCache
	keys          *filter.KeyFilter
	styleDefaults map[string]string
}

// NewTracker creates a tracker. cache may be nil.
func NewTracker(store Store, gen *keygen.Generator, ids *utils.IDSource, cache StyleCache, keys *filter.KeyFilter, styleDefaults map[string]string) *Tracker {
	return &Tracker{
		store:         store,
		gen:           gen,
		ids:           ids,
		cache:         cache,
		keys:          keys,
		styleDefaults: styleDefaults,
	}
}

// CreateParams carries the creation form fields. Key, Password and Style
// are all optional.
type CreateParams struct {
	URL      string
	Key      string
	Password string
	Style    map[string]string
}

// StatsView is the view-model for the statistics page.
type StatsView struct {
	Key        string
	URL        string
	Count      int
	Timestamps []time.Time
	Style      map[string]string
	Protected  bool
}

// ImpressionData is the machine-readable raw impression listing.
type ImpressionData struct {
	Key        string
	Count      int
	Timestamps []time.Time
}

// Create registers a new Association together with its Stats record. An
// explicit key that is already taken yields model.ErrKeyConflict; a
// generated key that keeps colliding yields model.ErrKeyGenExhausted.
// Either way nothing partial is written.
func (t *Tracker) Create(ctx context.Context, p CreateParams) (*model.Association, error) {
	if p.URL == "" {
		return nil, fmt.Errorf("url cannot be empty")
	}

	blob, err := style.Parse(p.Style)
	if err != nil {
		return nil, err
	}
	hash, err := guard.HashPassword(p.Password)
	if err != nil {
		return nil, err
	}

	if p.Key != "" {
		return t.createWithKey(ctx, p.Key, p.URL, blob, hash, false)
	}

	// Losing the insert race with a generated key is treated exactly like
	// the pre-check failing: draw again.
	for attempt := 0; attempt <= insertRetries; attempt++ {
		key, err := t.gen.Generate(ctx, t.store.KeyExists)
		if err != nil {
			return nil, err
		}
		assoc, err := t.createWithKey(ctx, key, p.URL, blob, hash, true)
		if errors.Is(err, model.ErrKeyConflict) {
			continue
		}
		return assoc, err
	}
	return nil, model.ErrKeyGenExhausted
}

func (t *Tracker) createWithKey(ctx context.Context, key, url string, blob, hash *string, generated bool) (*model.Association, error) {
	if !generated {
		taken, err := t.store.KeyExists(ctx, key)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, model.ErrKeyConflict
		}
	}

	assoc := &model.Association{
		ID:            t.ids.Next(),
		Key:           key,
		URL:           url,
		QRStyleConfig: blob,
	}
	stats := &model.Stats{
		ID:           t.ids.Next(),
		Key:          key,
		PasswordHash: hash,
	}
	if err := t.store.CreatePair(ctx, assoc, stats); err != nil {
		return nil, err
	}

	t.keys.Add(key)
	log.Printf("Created key %s for url %s", key, url)
	return assoc, nil
}

// Resolve records one impression for the key and returns the redirect
// target. The stored URL is returned as-is except that a missing
// http:// or https:// prefix gains https://; the stored value is never
// rewritten. Unknown keys produce no impression.
func (t *Tracker) Resolve(ctx context.Context, key string) (string, error) {
	// Definite filter miss saves the database round trip.
	if !t.keys.MayExist(key) {
		return "", model.ErrNotFound
	}

	assoc, err := t.store.ResolveAndRecord(ctx, key, t.ids.Next(), time.Now())
	if err != nil {
		if errors.Is(err, model.ErrIntegrity) {
			log.Printf("Integrity violation: %v (key %s)", err, key)
			return "", model.ErrNotFound
		}
		return "", err
	}
	return normalizeURL(assoc.URL), nil
}

// Stats builds the statistics view-model for a key, passing the password
// gate first.
func (t *Tracker) Stats(ctx context.Context, key, password string) (*StatsView, error) {
	assoc, stats, err := t.findPair(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := guard.Check(stats, password); err != nil {
		return nil, err
	}

	impressions, err := t.store.Impressions(ctx, stats.ID)
	if err != nil {
		return nil, err
	}
	timestamps := make([]time.Time, len(impressions))
	for i, imp := range impressions {
		timestamps[i] = imp.Datetime
	}

	return &StatsView{
		Key:        key,
		URL:        assoc.URL,
		Count:      len(impressions),
		Timestamps: timestamps,
		Style:      t.resolveStyle(ctx, assoc),
		Protected:  stats.Protected(),
	}, nil
}

// RawData returns the impression timestamps and count for a key.
func (t *Tracker) RawData(ctx context.Context, key string) (*ImpressionData, error) {
	_, stats, err := t.findPair(ctx, key)
	if err != nil {
		return nil, err
	}
	impressions, err := t.store.Impressions(ctx, stats.ID)
	if err != nil {
		return nil, err
	}
	timestamps := make([]time.Time, len(impressions))
	for i, imp := range impressions {
		timestamps[i] = imp.Datetime
	}
	return &ImpressionData{Key: key, Count: len(impressions), Timestamps: timestamps}, nil
}

// UpdateStyle replaces the stored style blob for a key after passing the
// password gate. Fields failing validation are dropped.
func (t *Tracker) UpdateStyle(ctx context.Context, key, password string, fields map[string]string) error {
	_, stats, err := t.findPair(ctx, key)
	if err != nil {
		return err
	}
	if err := guard.Check(stats, password); err != nil {
		return err
	}

	blob, err := style.Parse(fields)
	if err != nil {
		return err
	}
	if err := t.store.UpdateStyleConfig(ctx, key, blob); err != nil {
		return err
	}
	t.invalidateStyle(ctx, key)
	return nil
}

// Reset deletes every impression under the key, keeping the Association
// and Stats records.
func (t *Tracker) Reset(ctx context.Context, key, password string) error {
	_, stats, err := t.findPair(ctx, key)
	if err != nil {
		return err
	}
	if err := guard.Check(stats, password); err != nil {
		return err
	}
	return t.store.ResetImpressions(ctx, key)
}

// Delete removes the Association, its Stats and all impressions as one
// cascade. The key filter keeps the deleted key; the resulting stale
// positive falls through to a database miss.
func (t *Tracker) Delete(ctx context.Context, key, password string) error {
	_, stats, err := t.findPair(ctx, key)
	if err != nil {
		return err
	}
	if err := guard.Check(stats, password); err != nil {
		return err
	}
	if err := t.store.DeleteCascade(ctx, key); err != nil {
		return err
	}
	t.invalidateStyle(ctx, key)
	return nil
}

// WarmKeyFilter loads every known key into the filter at startup.
func (t *Tracker) WarmKeyFilter(ctx context.Context) error {
	keys, err := t.store.AllKeys(ctx)
	if err != nil {
		return err
	}
	t.keys.AddBatch(keys)
	log.Printf("Loaded %d keys into the filter", len(keys))
	return nil
}

// findPair fetches the Association and its Stats record. A missing Stats
// sibling for an existing Association is logged as an internal
// inconsistency and folded into model.ErrNotFound for the caller.
func (t *Tracker) findPair(ctx context.Context, key string) (*model.Association, *model.Stats, error) {
	assoc, err := t.store.FindAssociation(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	stats, err := t.store.FindStats(ctx, key)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			log.Printf("Integrity violation: %v (key %s)", model.ErrIntegrity, key)
			return nil, nil, model.ErrNotFound
		}
		return nil, nil, err
	}
	return assoc, stats, nil
}

// resolveStyle merges the stored blob over the defaults, consulting the
// cache first. Cache failures are logged and never fail the request.
func (t *Tracker) resolveStyle(ctx context.Context, assoc *model.Association) map[string]string {
	if t.cache != nil {
		resolved, err := t.cache.Get(ctx, assoc.Key)
		if err != nil {
			log.Printf("Failed to get style from cache: %v", err)
		}
		if resolved != nil {
			return resolved
		}
	}

	resolved := style.Resolve(t.styleDefaults, assoc.QRStyleConfig)
	if t.cache != nil {
		if err := t.cache.Set(ctx, assoc.Key, resolved); err != nil {
			log.Printf("Failed to set style cache: %v", err)
		}
	}
	return resolved
}

func (t *Tracker) invalidateStyle(ctx context.Context, key string) {
	if t.cache == nil {
		return
	}
	if err := t.cache.Delete(ctx, key); err != nil {
		log.Printf("Failed to invalidate style cache: %v", err)
	}
}

// normalizeURL adds an https:// prefix when the stored value carries
// neither http:// nor https://.
func normalizeURL(url string) string {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	return "https://" + url
}
