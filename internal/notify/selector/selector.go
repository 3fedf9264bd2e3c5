// Package selector finds the active mail template for an (organization, trigger, form) triple.
package selector

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"hiring-notifications/internal/common/logger"
	"hiring-notifications/internal/common/metrics"
	"hiring-notifications/internal/models"

	"golang.org/x/sync/singleflight"
)

// ErrNotFound means no active template is bound to the triple. It is an expected outcome.
var ErrNotFound = errors.New("no active template")

// KeyPrefix starts every cache key.
const KeyPrefix = "mail_template:"

const loadTimeout = 5 * time.Second

type TemplateStore interface {
	FindActiveTemplates(ctx context.Context, orgID, trigger, formID string) ([]models.MailTemplate, error)
}

// Cache is one lookup tier. Only found templates are stored.
type Cache interface {
	Name() string
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
	// Purge drops every template entry of the tier.
	Purge(ctx context.Context) error
}

type Entry struct {
	Template *models.MailTemplate `json:"template,omitempty"`
}

type Selector struct {
	store  TemplateStore
	caches []Cache
	group  singleflight.Group
	logger logger.Logger
	// generation moves on every invalidation; loads started earlier do not write back.
	generation atomic.Uint64
}

// New builds a selector. Caches are consulted in order, fastest first.
func New(store TemplateStore, log logger.Logger, caches ...Cache) *Selector {
	return &Selector{
		store:  store,
		caches: caches,
		logger: logger.Component(log, "selector"),
	}
}

// Select returns the first active template for the triple, or ErrNotFound.
// An empty orgID or formID short-circuits to ErrNotFound without touching the store.
func (s *Selector) Select(ctx context.Context, orgID, trigger, formID string) (*models.MailTemplate, error) {
	if orgID == "" || formID == "" {
		return nil, ErrNotFound
	}

	key := CacheKey(orgID, trigger, formID)
	if entry, ok := s.fromCache(ctx, key); ok {
		return found(entry)
	}

	// The shared load outlives any single caller; each caller waits on its own ctx.
	gen := s.generation.Load()
	ch := s.group.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return s.load(loadCtx, gen, key, orgID, trigger, formID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return found(res.Val.(Entry))
	}
}

// Invalidate drops the cached template of one triple from every tier.
func (s *Selector) Invalidate(ctx context.Context, orgID, trigger, formID string) {
	key := CacheKey(orgID, trigger, formID)
	s.generation.Add(1)
	s.group.Forget(key)
	for _, c := range s.caches {
		if err := c.Delete(ctx, key); err != nil {
			s.logger.Warn("template cache delete failed", map[string]interface{}{
				"tier":  c.Name(),
				"key":   key,
				"error": err,
			})
		}
	}
}

// Purge empties every tier. Used when template change events may have been missed.
func (s *Selector) Purge(ctx context.Context) {
	s.generation.Add(1)
	for _, c := range s.caches {
		if err := c.Purge(ctx); err != nil {
			s.logger.Warn("template cache purge failed", map[string]interface{}{
				"tier":  c.Name(),
				"error": err,
			})
		}
	}
}

func (s *Selector) load(ctx context.Context, gen uint64, key, orgID, trigger, formID string) (Entry, error) {
	templates, err := s.store.FindActiveTemplates(ctx, orgID, trigger, formID)
	if err != nil {
		return Entry{}, fmt.Errorf("find active templates: %w", err)
	}

	var entry Entry
	if len(templates) == 0 {
		return entry, nil
	}
	t := templates[0]
	entry.Template = &t
	if len(templates) > 1 {
		ids := make([]string, len(templates))
		for i, t := range templates {
			ids[i] = t.ID
		}
		s.logger.Warn("multiple active templates, using the first", map[string]interface{}{
			"orgId":       orgID,
			"trigger":     trigger,
			"formId":      formID,
			"templateIds": ids,
		})
	}

	if s.generation.Load() != gen {
		return entry, nil
	}
	for _, c := range s.caches {
		if err := c.Set(ctx, key, entry); err != nil {
			s.logger.Warn("template cache write failed", map[string]interface{}{
				"tier":  c.Name(),
				"key":   key,
				"error": err,
			})
		}
	}
	return entry, nil
}

func (s *Selector) fromCache(ctx context.Context, key string) (Entry, bool) {
	for i, c := range s.caches {
		entry, ok, err := c.Get(ctx, key)
		switch {
		case err != nil:
			metrics.TemplateCacheLookups.WithLabelValues(c.Name(), "error").Inc()
			s.logger.Warn("template cache read failed", map[string]interface{}{
				"tier":  c.Name(),
				"key":   key,
				"error": err,
			})
			continue
		case !ok || entry.Template == nil:
			metrics.TemplateCacheLookups.WithLabelValues(c.Name(), "miss").Inc()
			continue
		}

		metrics.TemplateCacheLookups.WithLabelValues(c.Name(), "hit").Inc()
		for _, faster := range s.caches[:i] {
			_ = faster.Set(ctx, key, entry)
		}
		return entry, true
	}
	return Entry{}, false
}

func found(entry Entry) (*models.MailTemplate, error) {
	if entry.Template == nil {
		return nil, ErrNotFound
	}
	t := *entry.Template
	return &t, nil
}

// CacheKey is the cache key for one triple. Parts are escaped so ':' inside an id
// cannot shift the boundaries.
func CacheKey(orgID, trigger, formID string) string {
	return KeyPrefix + url.QueryEscape(orgID) + ":" + url.QueryEscape(trigger) + ":" + url.QueryEscape(formID)
}
