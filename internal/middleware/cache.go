package middleware

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"

	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/middleware/cachestore"
)

// Metadata keys written by the cache stages.
const (
	MetaCache    = "cache"
	MetaCacheKey = "cache_key"
	CacheHit     = "hit"
	CacheMiss    = "miss"
)

// Metadata keys read by the cache stages. MetaCacheScope separates results of
// different operations on the same event; MetaCacheSkip set to true keeps the
// current result out of the store.
const (
	MetaCacheScope = "cache_scope"
	MetaCacheSkip  = "cache_skip"
)

// CacheOptions configures the cache stages.
type CacheOptions struct {
	// Store holds cached results.
	Store cachestore.Store

	// TTL is the lifetime of a stored result. Zero means no expiry.
	TTL time.Duration

	// Events limits caching to names matching these globs. Empty caches everything.
	Events []string

	// Logger receives store failures.
	Logger zerolog.Logger
}

// CacheKey derives the cache key for an event: BLAKE3 over the scope, the
// name and the JSON encoding of the payload.
func CacheKey(scope, name string, data any) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	h := blake3.New()
	_, _ = h.Write([]byte(scope))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(name))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Cache returns a before stage that serves stored results and an after stage
// that stores fresh ones. Store failures are logged and treated as misses.
func Cache(opts CacheOptions) []Registration {
	cond := forEvents(opts.Events)
	log := opts.Logger

	lookup := func(ctx context.Context, mc *Context, next Next) error {
		key, err := CacheKey(mc.GetString(MetaCacheScope), mc.EventName, mc.EventData)
		if err != nil {
			log.Debug().Err(err).Str("event", mc.EventName).Msg("payload not cacheable")
			return next()
		}
		mc.Set(MetaCacheKey, key)

		value, ok, err := opts.Store.Get(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("event", mc.EventName).Msg("cache lookup failed")
		}
		if ok {
			mc.Result = value
			mc.Set(MetaCache, CacheHit)
			return nil
		}
		mc.Set(MetaCache, CacheMiss)
		return next()
	}

	store := func(ctx context.Context, mc *Context, next Next) error {
		skip, _ := mc.Metadata[MetaCacheSkip].(bool)
		if mc.GetString(MetaCache) == CacheMiss && mc.Result != nil && !skip {
			key := mc.GetString(MetaCacheKey)
			if err := opts.Store.Set(ctx, key, mc.Result, opts.TTL); err != nil {
				log.Warn().Err(err).Str("event", mc.EventName).Msg("cache store failed")
			}
		}
		return next()
	}

	return []Registration{
		{
			Config:  Config{Name: NameCacheLookup, Stage: StageBefore, Priority: PriorityCache, Enabled: true, Condition: cond},
			Handler: lookup,
		},
		{
			Config:  Config{Name: NameCacheStore, Stage: StageAfter, Priority: PriorityCache, Enabled: true, Condition: cond},
			Handler: store,
		},
	}
}
