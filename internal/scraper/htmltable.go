package scraper

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/trawlhq/trawl/internal/model"
	"github.com/trawlhq/trawl/internal/netutil"
)

// htmlTableSource serves the free-proxy-list family: an HTML table with the
// fixed column layout 0=ip, 1=port, 3=country, 6=https flag. Rows with a
// https flag of "yes" are emitted as https, everything else as http.
type htmlTableSource struct {
	id  string
	url string
}

func (s *htmlTableSource) ID() string { return s.id }

func (s *htmlTableSource) Fetch(ctx context.Context, dl netutil.Downloader, opts FetchOptions) ([]model.Candidate, error) {
	body, err := dl.Download(ctx, s.url)
	if err != nil {
		return nil, err
	}
	return parseProxyTable(body, s.id, opts)
}

func parseProxyTable(body []byte, sourceID string, opts FetchOptions) ([]model.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	rows := doc.Find("#proxylisttable tbody tr")
	if rows.Length() == 0 {
		rows = doc.Find("table tbody tr")
	}

	var out []model.Candidate
	rows.EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		if opts.Quantity > 0 && len(out) >= opts.Quantity {
			return false
		}
		cells := tr.Find("td")
		if cells.Length() < 7 {
			return true
		}
		ip := strings.TrimSpace(cells.Eq(0).Text())
		portText := strings.TrimSpace(cells.Eq(1).Text())
		country := strings.ToUpper(strings.TrimSpace(cells.Eq(3).Text()))
		httpsFlag := strings.TrimSpace(cells.Eq(6).Text())

		port, err := strconv.ParseUint(portText, 10, 16)
		if err != nil || port == 0 {
			return true
		}

		protocol := model.ProtocolHTTP
		if strings.EqualFold(httpsFlag, "yes") {
			protocol = model.ProtocolHTTPS
		}
		if !opts.wantsProtocol(protocol) {
			return true
		}
		if opts.Country != "" && !strings.EqualFold(country, opts.Country) {
			return true
		}

		c := model.Candidate{
			IP:       ip,
			Port:     uint16(port),
			Protocol: protocol,
			Source:   sourceID,
		}
		if len(country) == 2 {
			c.Country = country
		}
		out = append(out, c)
		return true
	})
	return out, nil
}

func newFreeProxyListSource() Source {
	return &htmlTableSource{id: SourceFreeProxyList, url: "https://free-proxy-list.net/"}
}

func newSSLProxiesSource() Source {
	return &htmlTableSource{id: SourceSSLProxies, url: "https://www.sslproxies.org/"}
}

func newUSProxySource() Source {
	return &htmlTableSource{id: SourceUSProxy, url: "https://www.us-proxy.org/"}
}
