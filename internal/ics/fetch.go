package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	appLog "calconv/internal/log"
)

const (
	defaultFetchTimeout = 15 * time.Second
	userAgent           = "calconv/1.0 (+ics converter)"
)

// Source is a remote calendar feed.
type Source struct {
	// ID labels the source in logs; usually the converter name.
	ID  string
	URL string
}

// FetchResult is the outcome of fetching one source.
type FetchResult struct {
	Source    Source
	Body      []byte
	FromCache bool // body was served from the disk cache
}

// StatusError is returned for a non-2xx upstream response without a cached body.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return "upstream responded " + e.Status
}

type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads calendar feeds, using ETag / Last-Modified conditional
// requests backed by a disk cache. A cached body is served on 304 and when
// the upstream is unreachable or answers with an error status.
type Fetcher struct {
	client   *resty.Client
	cacheDir string

	// locks holds one *sync.Mutex per cache directory so body and meta are
	// read and replaced as a pair.
	locks sync.Map
}

// NewFetcher creates a Fetcher caching under cacheDir. An empty cacheDir
// disables the cache; a zero timeout uses the default.
func NewFetcher(cacheDir string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Fetcher{
		client: resty.New().
			SetTimeout(timeout).
			SetRedirectPolicy(resty.FlexibleRedirectPolicy(5)).
			SetHeader("User-Agent", userAgent).
			SetHeader("Accept", "text/calendar, */*;q=0.5"),
		cacheDir: cacheDir,
	}
}

// FetchAll fetches sources one after another. Failures are logged and
// collected; results only hold sources that produced a body.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) ([]FetchResult, []error) {
	results := make([]FetchResult, 0, len(sources))
	var errs []error

	for _, src := range sources {
		res, err := f.FetchOne(ctx, src)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.ID, err))
			appLog.Error("ics fetch failed", err, "id", src.ID, "url", appLog.RedactURL(src.URL))
			continue
		}
		results = append(results, res)
	}

	return results, errs
}

// FetchOne fetches a single source.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, errors.New("source URL is empty")
	}
	url := normalizeScheme(src.URL)

	var (
		cachePath  string
		meta       cacheEntry
		cachedBody []byte
	)
	if f.cacheDir != "" {
		cachePath = f.cachePathForURL(url)
		if err := os.MkdirAll(cachePath, 0o700); err != nil {
			return FetchResult{}, err
		}
		meta, cachedBody = f.loadCache(cachePath)
	}

	req := f.client.R().SetContext(ctx)
	// Conditional headers only make sense if there is a body to fall back to.
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.SetHeader("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.SetHeader("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("ics fetch start", "id", src.ID, "url", appLog.RedactURL(url))

	fromCache := func(reason string) (FetchResult, error) {
		appLog.Info("ics fetch using cached body", "id", src.ID, "url", appLog.RedactURL(url), "reason", reason)
		return FetchResult{Source: src, Body: cachedBody, FromCache: true}, nil
	}

	resp, err := req.Get(url)
	if err != nil {
		if len(cachedBody) > 0 && ctx.Err() == nil {
			appLog.Error("ics fetch network error", err, "id", src.ID, "url", appLog.RedactURL(url))
			return fromCache("network error")
		}
		return FetchResult{}, err
	}

	switch {
	case resp.IsSuccess():
		body := resp.Body()
		if cachePath != "" {
			newMeta := cacheEntry{
				URL:          url,
				ETag:         resp.Header().Get("ETag"),
				LastModified: resp.Header().Get("Last-Modified"),
			}
			if err := f.saveCache(cachePath, newMeta, body); err != nil {
				appLog.Error("ics cache save failed", err, "id", src.ID, "url", appLog.RedactURL(url))
			}
		}
		appLog.Info("ics fetch success", "id", src.ID, "url", appLog.RedactURL(url), "status", resp.StatusCode(), "bytes", len(body))
		return FetchResult{Source: src, Body: body}, nil

	case resp.StatusCode() == http.StatusNotModified:
		if len(cachedBody) == 0 {
			return FetchResult{}, errors.New("received 304 Not Modified but no cached body available")
		}
		return fromCache("not modified")

	default:
		if len(cachedBody) > 0 {
			return fromCache(resp.Status())
		}
		return FetchResult{}, &StatusError{StatusCode: resp.StatusCode(), Status: resp.Status()}
	}
}

// normalizeScheme maps webcal:// subscription links onto https.
func normalizeScheme(u string) string {
	const webcal = "webcal://"
	if len(u) >= len(webcal) && strings.EqualFold(u[:len(webcal)], webcal) {
		return "https://" + u[len(webcal):]
	}
	return u
}

// cachePathForURL names the cache directory after the first 8 bytes of the
// URL's SHA-256.
func (f *Fetcher) cachePathForURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func (f *Fetcher) lockFor(cachePath string) *sync.Mutex {
	mu, _ := f.locks.LoadOrStore(cachePath, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// loadCache returns the cached meta and body. A missing or unreadable entry
// yields an empty body.
func (f *Fetcher) loadCache(cachePath string) (cacheEntry, []byte) {
	mu := f.lockFor(cachePath)
	mu.Lock()
	defer mu.Unlock()

	body, err := os.ReadFile(filepath.Join(cachePath, "body.ics"))
	if err != nil {
		return cacheEntry{}, nil
	}
	meta, err := loadCacheMeta(cachePath)
	if err != nil {
		// Without validators the body is still usable as a fallback.
		return cacheEntry{}, body
	}
	return meta, body
}

func loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}

	mu := f.lockFor(cachePath)
	mu.Lock()
	defer mu.Unlock()

	// Body first, so meta never points at a missing body.
	if err := writeFileAtomic(filepath.Join(cachePath, "body.ics"), body); err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(cachePath, "meta.json"), data)
}

// writeFileAtomic replaces path with data through a temp file and rename, so
// readers in other processes never see a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
