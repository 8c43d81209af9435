package directory

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/torqueworks/torqueworks/internal/workorders"
)

// DedupedCatalog collapses concurrent lookups of the same catalog entry into
// one call to the underlying catalog.
type DedupedCatalog struct {
	inner workorders.Catalog
	group singleflight.Group
}

// NewDedupedCatalog wraps inner.
func NewDedupedCatalog(inner workorders.Catalog) *DedupedCatalog {
	return &DedupedCatalog{inner: inner}
}

// Service implements workorders.Catalog.
func (c *DedupedCatalog) Service(ctx context.Context, ref string) (workorders.CatalogService, error) {
	v, err := c.do(ctx, "service:"+ref, func(ctx context.Context) (any, error) {
		return c.inner.Service(ctx, ref)
	})
	if err != nil {
		return workorders.CatalogService{}, err
	}
	return v.(workorders.CatalogService), nil
}

// Part implements workorders.Catalog.
func (c *DedupedCatalog) Part(ctx context.Context, partNumber string) (workorders.CatalogPart, error) {
	v, err := c.do(ctx, "part:"+partNumber, func(ctx context.Context) (any, error) {
		return c.inner.Part(ctx, partNumber)
	})
	if err != nil {
		return workorders.CatalogPart{}, err
	}
	return v.(workorders.CatalogPart), nil
}

// do waits for the shared call but gives up when the caller's context ends.
func (c *DedupedCatalog) do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}
