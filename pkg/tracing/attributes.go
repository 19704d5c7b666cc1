package tracing

import "go.opentelemetry.io/otel/attribute"

// Attribute keys
const (
	// Fetch attributes
	AttrFetchSurface  = "osmnodes.fetch.surface"
	AttrFetchStatus   = "osmnodes.fetch.status"
	AttrFetchRows     = "osmnodes.fetch.rows"
	AttrFetchTagCount = "osmnodes.fetch.tag_count"
	AttrFetchWhere    = "osmnodes.fetch.where_count"
	AttrBBox          = "osmnodes.bbox"

	// External service attributes
	AttrServiceName      = "osm.service.name"
	AttrServiceOperation = "osm.service.operation"
	AttrServiceURL       = "osm.service.url"
	AttrQueryLength      = "osm.query.length"
	AttrElementCount     = "osm.response.elements"

	// Cache attributes
	AttrCacheType = "osm.cache.type"
	AttrCacheHit  = "osm.cache.hit"
	AttrCacheKey  = "osm.cache.key"

	// Rate limiting attributes
	AttrRateLimitService = "osm.ratelimit.service"
	AttrRateLimitWaitMs  = "osm.ratelimit.wait_ms"

	// HTTP attributes
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
	AttrHTTPPath       = "http.path"

	// Error attributes
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// Status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusNoData  = "no_data"
)

// Service names
const (
	ServiceOverpass = "overpass"
)

// Cache types
const (
	CacheTypeOverpass = "overpass"
)

// FetchAttributes returns attributes describing a completed fetch
func FetchAttributes(surface, status string, rows int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrFetchSurface, surface),
		attribute.String(AttrFetchStatus, status),
		attribute.Int(AttrFetchRows, rows),
	}
}

// CacheAttributes returns attributes for cache operations
func CacheAttributes(cacheType string, hit bool, key string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCacheType, cacheType),
		attribute.Bool(AttrCacheHit, hit),
		attribute.String(AttrCacheKey, key),
	}
}

// ErrorAttributes returns attributes for errors. errType is usually the
// error code of a classified failure.
func ErrorAttributes(errType string, err error) []attribute.KeyValue {
	if err == nil {
		return nil
	}
	if errType == "" {
		errType = "error"
	}
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, errType),
		attribute.String(AttrErrorMessage, err.Error()),
	}
}
