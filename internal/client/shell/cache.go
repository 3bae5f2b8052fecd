// Package shell serves the application assets cache-first so the form keeps
// working while the origin is unreachable.
//
// Cache is an http.Handler placed in front of the application origin. GET
// responses are answered from the active cache generation when present and
// fetched (and stored on success) otherwise. Other methods go straight to the
// origin and are never cached.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"

	"github.com/dmitrijs2005/formsync/internal/client/models"
	"github.com/dmitrijs2005/formsync/internal/client/repositories/assets"
	"github.com/dmitrijs2005/formsync/internal/logging"
)

const (
	DefaultGeneration = "form5-cache-v1"
	ShellPath         = "/index.html"

	cacheStatusHeader = "X-Cache"
	maxAssetSize      = 32 << 20
)

// DefaultManifest lists the assets installed with every generation.
var DefaultManifest = []string{
	"/",
	"/index.html",
	"/styles.css",
	"/app.js",
	"/manifest.json",
	"/icons/icon-192.png",
	"/icons/icon-512.png",
}

var ErrFetch = errors.New("asset fetch failed")

// hop-by-hop headers are never stored or replayed.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Set-Cookie",
}

// Headers that would let the origin answer with a body the cache cannot
// replay to another client: a compressed encoding or an empty 304.
var conditionalHeaders = []string{
	"Accept-Encoding",
	"If-None-Match",
	"If-Modified-Since",
	"If-Match",
	"If-Unmodified-Since",
	"If-Range",
	"Range",
}

type Cache struct {
	origin     *url.URL
	repo       assets.Repository
	client     *http.Client
	proxy      *httputil.ReverseProxy
	log        logging.Logger
	generation string
	manifest   []string
	maxSize    int64

	mu     sync.RWMutex
	active string
}

type Option func(*Cache)

func WithHTTPClient(c *http.Client) Option {
	return func(cache *Cache) { cache.client = c }
}

// WithMaxAssetSize caps the body size of a fetched asset. Larger bodies
// fail with ErrFetch.
func WithMaxAssetSize(n int64) Option {
	return func(cache *Cache) { cache.maxSize = n }
}

// WithManifest overrides DefaultManifest.
func WithManifest(paths []string) Option {
	return func(cache *Cache) { cache.manifest = paths }
}

func New(origin string, generation string, repo assets.Repository, log logging.Logger, opts ...Option) (*Cache, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("origin %q must be an absolute URL", origin)
	}
	if generation == "" {
		generation = DefaultGeneration
	}

	c := &Cache{
		origin:     u,
		repo:       repo,
		client:     http.DefaultClient,
		log:        log.With("module", "shell"),
		generation: generation,
		manifest:   DefaultManifest,
		maxSize:    maxAssetSize,
	}
	for _, o := range opts {
		o(c)
	}

	c.proxy = httputil.NewSingleHostReverseProxy(u)
	c.proxy.Transport = c.client.Transport
	c.proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		c.log.Warn(r.Context(), "origin unreachable", "method", r.Method, "path", r.URL.Path, "error", err)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
	}

	return c, nil
}

// Active returns the active generation, or "" before the first activation.
func (c *Cache) Active() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Install fetches every manifest asset into generation. Entries are stored
// only after all fetches succeed; otherwise nothing is stored.
func (c *Cache) Install(ctx context.Context, generation string, manifest []string) error {
	entries := make(map[string]models.CachedResponse, len(manifest))

	for _, path := range manifest {
		resp, err := c.fetch(ctx, path, nil)
		if err != nil {
			return fmt.Errorf("install %s: %w", generation, err)
		}
		if !isSuccess(resp.Status) {
			return fmt.Errorf("install %s: %w: %s answered %d", generation, ErrFetch, path, resp.Status)
		}
		entries[cacheKey(http.MethodGet, path)] = *resp
	}

	if err := c.repo.PutAll(ctx, generation, entries); err != nil {
		return fmt.Errorf("install %s: %w", generation, err)
	}

	c.log.Info(ctx, "generation installed", "generation", generation, "assets", len(entries))
	return nil
}

// Activate makes generation the one being served and drops all others.
func (c *Cache) Activate(ctx context.Context, generation string) error {
	if err := c.repo.Activate(ctx, generation); err != nil {
		return fmt.Errorf("activate %s: %w", generation, err)
	}

	c.mu.Lock()
	c.active = generation
	c.mu.Unlock()

	c.log.Info(ctx, "generation activated", "generation", generation)
	return nil
}

// Startup installs and activates the configured generation unless it is
// already active. On failure the previously active generation keeps serving.
func (c *Cache) Startup(ctx context.Context) error {
	active, err := c.repo.ActiveGeneration(ctx)
	if err != nil {
		return fmt.Errorf("read active generation: %w", err)
	}

	c.mu.Lock()
	c.active = active
	c.mu.Unlock()

	if active == c.generation {
		return nil
	}

	if err := c.Install(ctx, c.generation, c.manifest); err != nil {
		c.log.Warn(ctx, "install failed, keeping previous generation", "generation", c.generation, "active", active, "error", err)
		return err
	}
	return c.Activate(ctx, c.generation)
}

func (c *Cache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		c.proxy.ServeHTTP(w, r)
		return
	}

	ctx := r.Context()
	gen := c.current()
	key := cacheKey(r.Method, r.URL.RequestURI())

	if cached := c.lookup(ctx, gen, key); cached != nil {
		writeResponse(w, cached, "HIT")
		return
	}

	resp, err := c.fetch(ctx, r.URL.RequestURI(), r.Header)
	if err != nil {
		c.log.Debug(ctx, "fetch failed", "path", r.URL.Path, "error", err)
		if isNavigation(r) {
			if shell := c.lookup(ctx, gen, cacheKey(http.MethodGet, ShellPath)); shell != nil {
				writeResponse(w, shell, "FALLBACK")
				return
			}
		}
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	if isSuccess(resp.Status) {
		if err := c.repo.Put(ctx, gen, key, *resp); err != nil {
			c.log.Warn(ctx, "cannot store asset", "key", key, "error", err)
		}
	}
	writeResponse(w, resp, "MISS")
}

func (c *Cache) current() string {
	if a := c.Active(); a != "" {
		return a
	}
	return c.generation
}

func (c *Cache) lookup(ctx context.Context, gen, key string) *models.CachedResponse {
	resp, err := c.repo.Get(ctx, gen, key)
	if err != nil {
		c.log.Warn(ctx, "cache read failed", "key", key, "error", err)
		return nil
	}
	return resp
}

func (c *Cache) fetch(ctx context.Context, requestURI string, hdr http.Header) (*models.CachedResponse, error) {
	ref, err := url.Parse(requestURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.origin.ResolveReference(ref).String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if hdr != nil {
		req.Header = hdr.Clone()
		stripHop(req.Header)
		for _, k := range conditionalHeaders {
			req.Header.Del(k)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrFetch, requestURI, err)
	}
	if int64(len(body)) > c.maxSize {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrFetch, requestURI, c.maxSize)
	}

	h := resp.Header.Clone()
	stripHop(h)
	h.Del("Content-Length")

	return &models.CachedResponse{Status: resp.StatusCode, Header: h, Body: body}, nil
}

func writeResponse(w http.ResponseWriter, resp *models.CachedResponse, cacheStatus string) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set(cacheStatusHeader, cacheStatus)
	w.WriteHeader(resp.Status)
	_, _ = io.Copy(w, bytes.NewReader(resp.Body))
}

func cacheKey(method, requestURI string) string {
	return method + " " + requestURI
}

func isNavigation(r *http.Request) bool {
	return r.Header.Get("Sec-Fetch-Mode") == "navigate" ||
		strings.Contains(r.Header.Get("Accept"), "text/html")
}

func isSuccess(status int) bool {
	return status >= 200 && status <= 299
}

func stripHop(h http.Header) {
	for _, k := range hopHeaders {
		h.Del(k)
	}
}
