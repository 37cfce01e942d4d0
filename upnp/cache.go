package upnp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bluele/gcache"

	"github.com/lanctl/upnpcp/logging"
)

// DefaultCacheSize is the number of parsed documents DescriptionCache
// keeps per document kind (device description, SCPD) before evicting
// the least recently used.
const DefaultCacheSize = 64

// defaultFailureTTL bounds how long a failed fetch is remembered,
// so a flaky device does not get re-fetched on every NOTIFY it sends
// during the retry window, but a since-fixed device is retried well
// within a typical announcement's max-age.
const defaultFailureTTL = 30 * time.Second

// Fetcher is the subset of *http.Client DescriptionCache needs.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// DescriptionCache fetches and parses device description and SCPD
// documents, caching each by its source URL. Devices re-announce
// unchanged descriptions on every SSDP advertisement, so caching
// avoids a redundant HTTP round trip and XML decode per announcement.
// It never backs location validation, which must stay cache-free.
type DescriptionCache struct {
	devices gcache.Cache
	scpds   gcache.Cache
	http    Fetcher
	l       logging.Logger
}

// NewDescriptionCache builds a DescriptionCache backed by client, with
// room for size entries of each document kind (DefaultCacheSize if
// size <= 0).
func NewDescriptionCache(client Fetcher, l logging.Logger, size int) *DescriptionCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c := &DescriptionCache{http: client, l: l.Named("upnp.cache")}
	c.devices = gcache.New(size).LRU().
		LoaderExpireFunc(rememberFailures(c.loadDevice, defaultFailureTTL)).
		Build()
	c.scpds = gcache.New(size).LRU().
		LoaderExpireFunc(rememberFailures(c.loadSCPD, defaultFailureTTL)).
		Build()
	return c
}

// Device returns the parsed device description at location, fetching
// and parsing it on first request. A fetch/parse failure is cached too
// (for defaultFailureTTL), so a flaky device doesn't get re-fetched on
// every NOTIFY it sends during its retry window.
func (c *DescriptionCache) Device(location string) (*Device, error) {
	v, err := c.devices.Get(location)
	if err != nil {
		return nil, err
	}
	value, err := v.(fetchResult).Reveal()
	if err != nil {
		return nil, err
	}
	return value.(*Device), nil
}

// SCPD returns the parsed control protocol description at scpdURL,
// fetching and parsing it on first request.
func (c *DescriptionCache) SCPD(scpdURL string) (*SCPD, error) {
	v, err := c.scpds.Get(scpdURL)
	if err != nil {
		return nil, err
	}
	value, err := v.(fetchResult).Reveal()
	if err != nil {
		return nil, err
	}
	return value.(*SCPD), nil
}

// Purge drops every cached entry, forcing the next Device/SCPD call
// for a given URL to re-fetch it.
func (c *DescriptionCache) Purge() {
	c.devices.Purge()
	c.scpds.Purge()
}

func (c *DescriptionCache) loadDevice(key interface{}) (interface{}, error) {
	location := key.(string)
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("upnp: invalid location %q: %w", location, err)
	}
	data, err := c.fetch(location)
	if err != nil {
		return nil, err
	}
	return ParseDescription(data, u)
}

func (c *DescriptionCache) loadSCPD(key interface{}) (interface{}, error) {
	scpdURL := key.(string)
	data, err := c.fetch(scpdURL)
	if err != nil {
		return nil, err
	}
	return ParseSCPD(data)
}

func (c *DescriptionCache) fetch(rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upnp: fetching %s: http status %s", rawURL, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// fetchResult carries either a parsed document or the error that
// fetching/parsing it produced, so a failure can be stored in the
// gcache entry itself and expired after failureTTL instead of being
// re-fetched on every lookup.
type fetchResult interface {
	Reveal() (interface{}, error)
}

type fetchedValue struct{ value interface{} }

func (r fetchedValue) Reveal() (interface{}, error) { return r.value, nil }

type fetchedError struct{ err error }

func (r fetchedError) Reveal() (interface{}, error) { return nil, r.err }

// rememberFailures wraps a plain gcache.LoaderFunc so a failed load is
// cached as a fetchedError for failureTTL rather than retried on every
// Get, while a successful load keeps gcache's normal expiration.
func rememberFailures(load func(key interface{}) (interface{}, error), failureTTL time.Duration) gcache.LoaderExpireFunc {
	return func(key interface{}) (interface{}, *time.Duration, error) {
		value, err := load(key)
		if err != nil {
			return fetchedError{err}, &failureTTL, nil
		}
		return fetchedValue{value}, nil, nil
	}
}
