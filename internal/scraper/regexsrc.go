package scraper

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/trawlhq/trawl/internal/model"
	"github.com/trawlhq/trawl/internal/netutil"
)

// --- gatherproxy ---

// gatherProxySource scrapes the JS blob embedded in gatherproxy pages. Each
// row carries "PROXY_IP":"..." and "PROXY_PORT":"..." where the port is
// decimal or hex.
type gatherProxySource struct{}

func newGatherProxySource() Source { return &gatherProxySource{} }

func (s *gatherProxySource) ID() string { return SourceGatherProxy }

var gatherProxyRowRe = regexp.MustCompile(`(?s)"PROXY_IP":"([^"]+)".*?"PROXY_PORT":"([^"]+)"`)

func (s *gatherProxySource) Fetch(ctx context.Context, dl netutil.Downloader, opts FetchOptions) ([]model.Candidate, error) {
	// gatherproxy lists http proxies only.
	if !opts.wantsProtocol(model.ProtocolHTTP) {
		return nil, nil
	}

	u := "http://www.gatherproxy.com/proxylist/anonymity/?t=Elite"
	if opts.Country != "" {
		u = "http://www.gatherproxy.com/proxylist/country/?c=" + strings.ToUpper(opts.Country)
	}
	body, err := dl.Download(ctx, u)
	if err != nil {
		return nil, err
	}

	var out []model.Candidate
	for _, m := range gatherProxyRowRe.FindAllSubmatch(body, -1) {
		if opts.Quantity > 0 && len(out) >= opts.Quantity {
			break
		}
		port, ok := parseDecimalOrHexPort(string(m[2]))
		if !ok {
			continue
		}
		c := model.Candidate{
			IP:       string(m[1]),
			Port:     port,
			Protocol: model.ProtocolHTTP,
			Source:   SourceGatherProxy,
		}
		if len(opts.Country) == 2 {
			c.Country = strings.ToUpper(opts.Country)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseDecimalOrHexPort(s string) (uint16, bool) {
	if n, err := strconv.ParseUint(s, 10, 16); err == nil && n > 0 {
		return uint16(n), true
	}
	if n, err := strconv.ParseUint(s, 16, 16); err == nil && n > 0 {
		return uint16(n), true
	}
	return 0, false
}

// --- spys.one ---

// spysOneSource extracts loose IP:PORT patterns from the spys.one markup.
type spysOneSource struct{}

func newSpysOneSource() Source { return &spysOneSource{} }

func (s *spysOneSource) ID() string { return SourceSpysOne }

var ipPortRe = regexp.MustCompile(`(\d{1,3}(?:\.\d{1,3}){3}):(\d{2,5})`)

func (s *spysOneSource) Fetch(ctx context.Context, dl netutil.Downloader, opts FetchOptions) ([]model.Candidate, error) {
	if !opts.wantsProtocol(model.ProtocolHTTP) {
		return nil, nil
	}

	u := "https://spys.one/en/http-proxy-list/"
	if opts.Country != "" {
		u = "https://spys.one/free-proxy-list/" + strings.ToUpper(opts.Country) + "/"
	}
	body, err := dl.Download(ctx, u)
	if err != nil {
		return nil, err
	}

	var out []model.Candidate
	for _, m := range ipPortRe.FindAllSubmatch(body, -1) {
		if opts.Quantity > 0 && len(out) >= opts.Quantity {
			break
		}
		port, err := strconv.ParseUint(string(m[2]), 10, 16)
		if err != nil || port == 0 {
			continue
		}
		c := model.Candidate{
			IP:       string(m[1]),
			Port:     uint16(port),
			Protocol: model.ProtocolHTTP,
			Source:   SourceSpysOne,
		}
		if len(opts.Country) == 2 {
			c.Country = strings.ToUpper(opts.Country)
		}
		out = append(out, c)
	}
	return out, nil
}
