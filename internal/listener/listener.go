// Package listener wires model lifecycle events to cache invalidation and
// form-entry notifications.
package listener

import (
	"context"

	"github.com/pagecraft/internal/event"
)

// SitemapTables are the tables whose changes alter the sitemap.
var SitemapTables = []string{"pages", "blocks", "articles", "article_categories", "products"}

// SitemapInvalidator drops a cached sitemap.
type SitemapInvalidator interface {
	Invalidate()
}

// EntryNotifier schedules delivery of a stored form entry.
type EntryNotifier interface {
	Enqueue(entryID uint) bool
}

// InvalidateSitemap returns a listener that clears the sitemap cache.
func InvalidateSitemap(sitemap SitemapInvalidator) event.Listener {
	return event.ForTables(func(ctx context.Context, e event.Event) error {
		sitemap.Invalidate()
		return nil
	}, SitemapTables...)
}

// NotifyFormEntry returns a listener that queues new form entries.
// enqueue only; the callback runs on the write path
func NotifyFormEntry(notifier EntryNotifier) event.Listener {
	return event.ForTables(func(ctx context.Context, e event.Event) error {
		if e.ID == 0 {
			return nil
		}
		notifier.Enqueue(e.ID)
		return nil
	}, "form_entries")
}

// Register subscribes the listeners on bus. Either dependency may be nil.
func Register(bus *event.Bus, sitemap SitemapInvalidator, notifier EntryNotifier) {
	if sitemap != nil {
		bus.Subscribe(InvalidateSitemap(sitemap), event.TopicCreated, event.TopicUpdated, event.TopicDeleted)
	}
	if notifier != nil {
		bus.Subscribe(NotifyFormEntry(notifier), event.TopicCreated)
	}
}
