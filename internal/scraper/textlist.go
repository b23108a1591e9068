package scraper

import (
	"context"

	"github.com/trawlhq/trawl/internal/model"
	"github.com/trawlhq/trawl/internal/netutil"
)

// rawListSource serves sources that publish plain "ip:port" lists, one URL
// per protocol. The protocol is implied by the endpoint, so the protocols
// filter selects which URLs get fetched.
type rawListSource struct {
	id   string
	urls []protocolURL // fetch order matters for quantity accounting
}

type protocolURL struct {
	protocol model.Protocol
	url      string
}

func (s *rawListSource) ID() string { return s.id }

func (s *rawListSource) Fetch(ctx context.Context, dl netutil.Downloader, opts FetchOptions) ([]model.Candidate, error) {
	var out []model.Candidate
	for _, pu := range s.urls {
		if opts.Quantity > 0 && len(out) >= opts.Quantity {
			break
		}
		if !opts.wantsProtocol(pu.protocol) {
			continue
		}
		body, err := dl.Download(ctx, pu.url)
		if err != nil {
			// A single failed endpoint does not fail the source.
			continue
		}
		remaining := 0
		if opts.Quantity > 0 {
			remaining = opts.Quantity - len(out)
		}
		out = append(out, parseIPPortLines(body, pu.protocol, s.id, remaining)...)
	}
	return out, nil
}

func newProxyScrapeSource() Source {
	return &rawListSource{
		id: SourceProxyScrape,
		urls: []protocolURL{
			{model.ProtocolHTTP, "https://api.proxyscrape.com/v2/?request=displayproxies&protocol=http&timeout=10000&country=all&ssl=no&anonymity=all"},
			{model.ProtocolHTTPS, "https://api.proxyscrape.com/v2/?request=displayproxies&protocol=http&timeout=10000&country=all&ssl=yes&anonymity=all"},
		},
	}
}

func newProxyListDownloadSource() Source {
	return &rawListSource{
		id: SourceProxyListDL,
		urls: []protocolURL{
			{model.ProtocolHTTP, "https://www.proxy-list.download/api/v1/get?type=http"},
			{model.ProtocolHTTPS, "https://www.proxy-list.download/api/v1/get?type=https"},
		},
	}
}

func newGitHubSpeedXSource() Source {
	return &rawListSource{
		id: SourceGitHubSpeedX,
		urls: []protocolURL{
			{model.ProtocolHTTP, "https://raw.githubusercontent.com/TheSpeedX/PROXY-List/master/http.txt"},
			{model.ProtocolSOCKS4, "https://raw.githubusercontent.com/TheSpeedX/PROXY-List/master/socks4.txt"},
			{model.ProtocolSOCKS5, "https://raw.githubusercontent.com/TheSpeedX/PROXY-List/master/socks5.txt"},
		},
	}
}

func newGitHubShiftyTRSource() Source {
	return &rawListSource{
		id: SourceGitHubShiftyTR,
		urls: []protocolURL{
			{model.ProtocolHTTP, "https://raw.githubusercontent.com/ShiftyTR/Proxy-List/master/http.txt"},
			{model.ProtocolHTTPS, "https://raw.githubusercontent.com/ShiftyTR/Proxy-List/master/https.txt"},
			{model.ProtocolSOCKS4, "https://raw.githubusercontent.com/ShiftyTR/Proxy-List/master/socks4.txt"},
			{model.ProtocolSOCKS5, "https://raw.githubusercontent.com/ShiftyTR/Proxy-List/master/socks5.txt"},
		},
	}
}

func newGitHubMonosansSource() Source {
	return &rawListSource{
		id: SourceGitHubMonosans,
		urls: []protocolURL{
			{model.ProtocolHTTP, "https://raw.githubusercontent.com/monosans/proxy-list/main/proxies/http.txt"},
			{model.ProtocolSOCKS4, "https://raw.githubusercontent.com/monosans/proxy-list/main/proxies/socks4.txt"},
			{model.ProtocolSOCKS5, "https://raw.githubusercontent.com/monosans/proxy-list/main/proxies/socks5.txt"},
		},
	}
}

func newGitHubJetkaiSource() Source {
	return &rawListSource{
		id: SourceGitHubJetkai,
		urls: []protocolURL{
			{model.ProtocolHTTP, "https://raw.githubusercontent.com/jetkai/proxy-list/main/online-proxies/txt/proxies-http.txt"},
			{model.ProtocolHTTPS, "https://raw.githubusercontent.com/jetkai/proxy-list/main/online-proxies/txt/proxies-https.txt"},
			{model.ProtocolSOCKS4, "https://raw.githubusercontent.com/jetkai/proxy-list/main/online-proxies/txt/proxies-socks4.txt"},
			{model.ProtocolSOCKS5, "https://raw.githubusercontent.com/jetkai/proxy-list/main/online-proxies/txt/proxies-socks5.txt"},
		},
	}
}
