package cache

import (
	"context"
	"slices"
	"time"

	"github.com/ReneKroon/ttlcache"

	"github.com/code-payments/flipchat-iapkit/iap"
)

var _ iap.Catalog = (*Cache)(nil)

// Cache fronts a Catalog with a per-product TTL cache. Entries expire ttl
// after they were fetched, however often they are read. Products the backing
// catalog does not return are never cached, so they are looked up again on
// the next call.
type Cache struct {
	catalog iap.Catalog
	cache   *ttlcache.Cache
}

func NewInCache(catalog iap.Catalog, ttl time.Duration) *Cache {
	cache := ttlcache.NewCache()
	cache.SetTTL(ttl)
	cache.SkipTtlExtensionOnHit(true)
	return &Cache{
		catalog: catalog,
		cache:   cache,
	}
}

func (c *Cache) ListProducts(ctx context.Context, ids []string) ([]iap.Product, error) {
	found := make(map[string]iap.Product, len(ids))

	var missing []string
	for _, id := range ids {
		if cached, ok := c.cache.Get(id); ok {
			found[id] = cached.(iap.Product)
		} else if !slices.Contains(missing, id) {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		fetched, err := c.catalog.ListProducts(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, product := range fetched {
			c.cache.Set(product.ID, product)
			found[product.ID] = product
		}
	}

	products := make([]iap.Product, 0, len(found))
	for _, id := range ids {
		if product, ok := found[id]; ok {
			products = append(products, product)
			delete(found, id)
		}
	}
	return products, nil
}

// Invalidate drops the cached entry for productID.
func (c *Cache) Invalidate(productID string) {
	c.cache.Remove(productID)
}

// Close stops the cache's expiry goroutine.
func (c *Cache) Close() {
	c.cache.Close()
}
