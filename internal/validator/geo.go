package validator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/oschwald/maxminddb-golang"

	"github.com/trawlhq/trawl/internal/config"
)

const geoRequestTimeout = 5 * time.Second

// geoProvider resolves an IP to an ISO2 country code.
type geoProvider interface {
	name() string
	country(ctx context.Context, client *http.Client, ip string) (string, error)
}

// GeoResolver tries a chain of providers in order until one answers.
// The configured provider goes first, followed by the remaining HTTP
// providers as fallbacks.
type GeoResolver struct {
	providers []geoProvider
	client    *http.Client
}

// NewGeoResolver builds the provider chain for the configured provider id.
// mmdbPath is only consulted when the configured provider is mmdb.
func NewGeoResolver(configured, mmdbPath string) (*GeoResolver, error) {
	var primary geoProvider
	switch configured {
	case config.GeoProviderIPAPI:
		primary = ipAPIProvider{}
	case config.GeoProviderIPAPIC:
		primary = ipAPICoProvider{}
	case config.GeoProviderIPInfo:
		primary = ipInfoProvider{}
	case config.GeoProviderMMDB:
		p, err := newMMDBProvider(mmdbPath)
		if err != nil {
			return nil, err
		}
		primary = p
	default:
		return nil, fmt.Errorf("unknown geolocation provider %q", configured)
	}

	chain := []geoProvider{primary, ipAPICoProvider{}, ipInfoProvider{}}
	seen := make(map[string]bool, len(chain))
	var deduped []geoProvider
	for _, p := range chain {
		if seen[p.name()] {
			continue
		}
		seen[p.name()] = true
		deduped = append(deduped, p)
	}

	return &GeoResolver{
		providers: deduped,
		client:    &http.Client{Timeout: geoRequestTimeout},
	}, nil
}

// Country resolves ip to an upper-case ISO2 country code. Providers are
// tried in order; the first non-empty answer wins.
func (g *GeoResolver) Country(ctx context.Context, ip string) (string, error) {
	var lastErr error
	for _, p := range g.providers {
		code, err := p.country(ctx, g.client, ip)
		if err != nil {
			lastErr = err
			continue
		}
		if code != "" {
			return strings.ToUpper(code), nil
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("geolocation failed for %s: %w", ip, lastErr)
	}
	return "", fmt.Errorf("geolocation failed for %s: no provider answered", ip)
}

// Close releases any provider-held resources.
func (g *GeoResolver) Close() error {
	var errs []error
	for _, p := range g.providers {
		if c, ok := p.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

func geoGetJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("geo provider returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// ipAPIProvider queries ip-api.com.
type ipAPIProvider struct {
	baseURL string // test override
}

func (ipAPIProvider) name() string { return config.GeoProviderIPAPI }

func (p ipAPIProvider) country(ctx context.Context, client *http.Client, ip string) (string, error) {
	base := p.baseURL
	if base == "" {
		base = "http://ip-api.com"
	}
	var body struct {
		Status      string `json:"status"`
		CountryCode string `json:"countryCode"`
	}
	url := fmt.Sprintf("%s/json/%s?fields=status,countryCode", base, ip)
	if err := geoGetJSON(ctx, client, url, &body); err != nil {
		return "", err
	}
	if body.Status != "success" {
		return "", fmt.Errorf("ip-api lookup failed for %s", ip)
	}
	return body.CountryCode, nil
}

// ipAPICoProvider queries ipapi.co.
type ipAPICoProvider struct {
	baseURL string
}

func (ipAPICoProvider) name() string { return config.GeoProviderIPAPIC }

func (p ipAPICoProvider) country(ctx context.Context, client *http.Client, ip string) (string, error) {
	base := p.baseURL
	if base == "" {
		base = "https://ipapi.co"
	}
	var body struct {
		CountryCode string `json:"country_code"`
	}
	if err := geoGetJSON(ctx, client, fmt.Sprintf("%s/%s/json/", base, ip), &body); err != nil {
		return "", err
	}
	return body.CountryCode, nil
}

// ipInfoProvider queries ipinfo.io.
type ipInfoProvider struct {
	baseURL string
}

func (ipInfoProvider) name() string { return config.GeoProviderIPInfo }

func (p ipInfoProvider) country(ctx context.Context, client *http.Client, ip string) (string, error) {
	base := p.baseURL
	if base == "" {
		base = "https://ipinfo.io"
	}
	var body struct {
		Country string `json:"country"`
	}
	if err := geoGetJSON(ctx, client, fmt.Sprintf("%s/%s/json", base, ip), &body); err != nil {
		return "", err
	}
	return body.Country, nil
}

// mmdbProvider answers from a local MaxMind database, no network needed.
type mmdbProvider struct {
	reader *maxminddb.Reader
}

func newMMDBProvider(path string) (*mmdbProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("mmdb provider requires a database path")
	}
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mmdb %s: %w", path, err)
	}
	return &mmdbProvider{reader: reader}, nil
}

func (*mmdbProvider) name() string { return config.GeoProviderMMDB }

func (p *mmdbProvider) country(ctx context.Context, _ *http.Client, ip string) (string, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", fmt.Errorf("invalid IP %q", ip)
	}
	var record struct {
		Country struct {
			ISOCode string `maxminddb:"iso_code"`
		} `maxminddb:"country"`
	}
	if err := p.reader.Lookup(parsed, &record); err != nil {
		return "", err
	}
	return record.Country.ISOCode, nil
}

func (p *mmdbProvider) Close() error {
	return p.reader.Close()
}
