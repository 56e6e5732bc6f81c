package biometric

import (
	"context"
	"log/slog"
	"time"

	"github.com/maypok86/otter"
)

// TemplateCache keeps decrypted templates in memory keyed by biometric id so
// that identification does not pay the decrypt cost on every scan.
type TemplateCache struct {
	store otter.Cache[string, []byte]
}

func NewTemplateCache(expiration time.Duration, maxSize int) (*TemplateCache, error) {
	builder, err := otter.NewBuilder[string, []byte](maxSize)
	if err != nil {
		return nil, err
	}
	store, err := builder.WithTTL(expiration).Build()
	if err != nil {
		return nil, err
	}
	return &TemplateCache{store: store}, nil
}

func (c *TemplateCache) Get(ctx context.Context, id string) ([]byte, bool) {
	b, found := c.store.Get(id)
	if !found {
		slog.DebugContext(ctx, "Template not found in memory cache", "biometricID", id)
	}
	return b, found
}

func (c *TemplateCache) Set(ctx context.Context, id string, template []byte) {
	c.store.Set(id, template)
}

func (c *TemplateCache) Delete(ctx context.Context, id string) {
	c.store.Delete(id)
	slog.DebugContext(ctx, "Deleted template from memory cache", "biometricID", id)
}

func (c *TemplateCache) Close() {
	c.store.Close()
}
