package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTTL is how long an entry is kept when the response carries no
// usable Expires header. Entries are revalidated on every use, so this only
// bounds Redis memory.
const DefaultTTL = 5 * time.Minute

// Header names read and written by the cache.
const (
	headerETag            = "ETag"
	headerLastModified    = "Last-Modified"
	headerExpires         = "Expires"
	headerIfNoneMatch     = "If-None-Match"
	headerIfModifiedSince = "If-Modified-Since"

	// HeaderCache marks responses rebuilt from the cache with the value "HIT".
	HeaderCache = "X-Cache"
)

// ResponseToEntry snapshots resp into a CacheEntry. The body is read fully
// and replaced with an in-memory copy so the caller can still consume it.
func ResponseToEntry(resp *http.Response) (*CacheEntry, error) {
	if resp == nil {
		return nil, errors.New("cache: nil response")
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	entry := &CacheEntry{
		Data:       body,
		ETag:       resp.Header.Get(headerETag),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		CachedAt:   time.Now(),
		Expires:    ExpiresFrom(resp.Header),
	}
	if t, ok := headerTime(resp.Header, headerLastModified); ok {
		entry.LastModified = t
	}
	return entry, nil
}

// ExpiresFrom returns when a response with headers stops being fresh: the
// Expires time, now if that is already past, or now + DefaultTTL when the
// header is missing or malformed.
func ExpiresFrom(headers http.Header) time.Time {
	now := time.Now()
	expires, ok := headerTime(headers, headerExpires)
	switch {
	case !ok:
		return now.Add(DefaultTTL)
	case expires.Before(now):
		return now
	default:
		return expires
	}
}

func headerTime(headers http.Header, name string) (time.Time, bool) {
	value := headers.Get(name)
	if value == "" {
		return time.Time{}, false
	}
	t, err := http.ParseTime(value)
	return t, err == nil
}

// ShouldMakeConditionalRequest reports whether entry has a validator that
// can be sent back to the server.
func ShouldMakeConditionalRequest(entry *CacheEntry) bool {
	return entry != nil && entry.HasValidator()
}

// AddConditionalHeaders asks the server to answer 304 if entry is still
// current. The ETag is preferred; Last-Modified is used only without one.
func AddConditionalHeaders(req *http.Request, entry *CacheEntry) {
	if req == nil || entry == nil {
		return
	}
	if req.Header == nil {
		req.Header = http.Header{}
	}

	switch {
	case entry.ETag != "":
		req.Header.Set(headerIfNoneMatch, entry.ETag)
	case !entry.LastModified.IsZero():
		req.Header.Set(headerIfModifiedSince, entry.LastModified.UTC().Format(http.TimeFormat))
	}
}

// EntryToResponse turns a cached entry back into a response to req (which
// may be nil), tagged with X-Cache: HIT.
func EntryToResponse(entry *CacheEntry, req *http.Request) *http.Response {
	header := entry.Headers.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set(HeaderCache, "HIT")

	code := entry.StatusCode
	if code == 0 {
		code = http.StatusOK
	}

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", code, http.StatusText(code)),
		StatusCode:    code,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(entry.Data)),
		ContentLength: int64(len(entry.Data)),
		Request:       req,
	}
}
