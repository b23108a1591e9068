// Package scraper implements the upstream source adapters and the scraping
// coordinator that fans out to them with caching and per-source rate caps.
package scraper

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/trawlhq/trawl/internal/model"
	"github.com/trawlhq/trawl/internal/netutil"
)

// FetchOptions narrows what a source should return.
type FetchOptions struct {
	Country   string // ISO2, empty for any
	Protocols []model.Protocol
	Quantity  int
}

func (o FetchOptions) wantsProtocol(p model.Protocol) bool {
	if len(o.Protocols) == 0 {
		return true
	}
	return slices.Contains(o.Protocols, p)
}

// Source is one upstream proxy list. Fetch returns at most opts.Quantity
// candidates, each tagged with the source id.
type Source interface {
	ID() string
	Fetch(ctx context.Context, dl netutil.Downloader, opts FetchOptions) ([]model.Candidate, error)
}

// Default source ids in dispatch order.
const (
	SourceProxyScrape    = "proxyscrape"
	SourceFreeProxyList  = "free-proxy-list"
	SourceSSLProxies     = "sslproxies"
	SourceUSProxy        = "us-proxy"
	SourcePubProxy       = "pubproxy"
	SourceGatherProxy    = "gatherproxy"
	SourceSpysOne        = "spys.one"
	SourceProxyListDL    = "proxy-list.download"
	SourceProxyScan      = "proxyscan"
	SourceGitHubSpeedX   = "github-speedx"
	SourceGitHubShiftyTR = "github-shiftytr"
	SourceGitHubMonosans = "github-monosans"
	SourceGitHubJetkai   = "github-jetkai"
)

// DefaultSources builds the full adapter set in canonical order.
func DefaultSources() []Source {
	return []Source{
		newProxyScrapeSource(),
		newFreeProxyListSource(),
		newSSLProxiesSource(),
		newUSProxySource(),
		newPubProxySource(),
		newGatherProxySource(),
		newSpysOneSource(),
		newProxyListDownloadSource(),
		newProxyScanSource(),
		newGitHubSpeedXSource(),
		newGitHubShiftyTRSource(),
		newGitHubMonosansSource(),
		newGitHubJetkaiSource(),
	}
}

// parseIPPortLines extracts "ip:port" pairs from a raw text list, one per
// line. Lines that do not parse are skipped.
func parseIPPortLines(body []byte, protocol model.Protocol, sourceID string, limit int) []model.Candidate {
	var out []model.Candidate
	for _, line := range strings.Split(string(body), "\n") {
		if limit > 0 && len(out) >= limit {
			break
		}
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" {
			continue
		}
		host, portStr, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		port, err := strconv.ParseUint(strings.TrimSpace(portStr), 10, 16)
		if err != nil || port == 0 {
			continue
		}
		out = append(out, model.Candidate{
			IP:       strings.TrimSpace(host),
			Port:     uint16(port),
			Protocol: protocol,
			Source:   sourceID,
		})
	}
	return out
}
