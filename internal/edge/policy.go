package edge

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// QueryParams names the allow-listed dimension parameters.
type QueryParams struct {
	Width  string
	Height string
}

func DefaultQueryParams() QueryParams {
	return QueryParams{Width: "width", Height: "height"}
}

func (q QueryParams) List() []string {
	return []string{q.Width, q.Height}
}

// CachePolicy holds the TTL rules the CDN applies around the transformers.
type CachePolicy struct {
	DefaultTTL time.Duration
	MinTTL     time.Duration
	MaxTTL     time.Duration
	// FallbackTTL applies to responses that carry the original instead of
	// the requested variant.
	FallbackTTL time.Duration
	// NegativeTTL applies to not-found responses. Zero disables caching.
	NegativeTTL time.Duration
	Params      QueryParams
}

func DefaultCachePolicy() CachePolicy {
	return CachePolicy{
		DefaultTTL:  365 * day,
		MinTTL:      90 * day,
		MaxTTL:      730 * day,
		FallbackTTL: 5 * time.Minute,
		NegativeTTL: 0,
		Params:      DefaultQueryParams(),
	}
}

func (p CachePolicy) Validate() error {
	if p.MinTTL < 0 || p.MaxTTL < 0 || p.DefaultTTL < 0 {
		return fmt.Errorf("cache ttls must not be negative")
	}
	if p.MinTTL > p.MaxTTL {
		return fmt.Errorf("cache min ttl %s exceeds max ttl %s", p.MinTTL, p.MaxTTL)
	}
	if p.Params.Width == "" || p.Params.Height == "" || p.Params.Width == p.Params.Height {
		return fmt.Errorf("width and height query parameters must be distinct and non-empty")
	}
	return nil
}

func (p CachePolicy) clamp(ttl time.Duration) time.Duration {
	if ttl < p.MinTTL {
		ttl = p.MinTTL
	}
	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}
	return ttl
}

// VariantCacheControl is emitted for resized variants and for originals
// served as-is. Both are immutable once produced.
func (p CachePolicy) VariantCacheControl() string {
	return fmt.Sprintf("public, max-age=%d, immutable", int64(p.clamp(p.DefaultTTL).Seconds()))
}

func (p CachePolicy) FallbackCacheControl() string {
	return maxAge(p.FallbackTTL)
}

func (p CachePolicy) NegativeCacheControl() string {
	return maxAge(p.NegativeTTL)
}

func maxAge(ttl time.Duration) string {
	if ttl <= 0 {
		return "no-store"
	}
	return fmt.Sprintf("public, max-age=%d", int64(ttl.Seconds()))
}

// TTLFor derives how long a CDN may keep a response carrying cacheControl.
// Explicit max-age values are honoured below MinTTL so short fallback
// headers stay short; a missing header gets DefaultTTL.
func (p CachePolicy) TTLFor(cacheControl string) time.Duration {
	if strings.TrimSpace(cacheControl) == "" {
		return p.clamp(p.DefaultTTL)
	}
	var ttl time.Duration = -1
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.ToLower(strings.TrimSpace(directive))
		switch {
		case directive == "no-store", directive == "no-cache", directive == "private":
			return 0
		case strings.HasPrefix(directive, "s-maxage="):
			if secs, err := strconv.ParseInt(strings.TrimPrefix(directive, "s-maxage="), 10, 64); err == nil {
				ttl = time.Duration(secs) * time.Second
			}
		case strings.HasPrefix(directive, "max-age=") && ttl < 0:
			if secs, err := strconv.ParseInt(strings.TrimPrefix(directive, "max-age="), 10, 64); err == nil {
				ttl = time.Duration(secs) * time.Second
			}
		}
	}
	if ttl < 0 {
		return p.clamp(p.DefaultTTL)
	}
	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}
	return ttl
}

// CacheKey composes the CDN cache key: the path plus only the allow-listed
// query parameters, in a fixed order.
func (p CachePolicy) CacheKey(uri, rawQuery string) string {
	values, _ := url.ParseQuery(rawQuery)
	allowed := p.Params.List()
	sort.Strings(allowed)

	var b strings.Builder
	b.WriteString(uri)
	sep := byte('?')
	for _, name := range allowed {
		for _, v := range values[name] {
			b.WriteByte(sep)
			b.WriteString(url.QueryEscape(name))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
			sep = '&'
		}
	}
	return b.String()
}
