package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/trawlhq/trawl/internal/model"
	"github.com/trawlhq/trawl/internal/netutil"
)

// --- pubproxy ---

type pubProxySource struct{}

func newPubProxySource() Source { return &pubProxySource{} }

func (s *pubProxySource) ID() string { return SourcePubProxy }

type pubProxyResponse struct {
	Data []struct {
		IP      string `json:"ip"`
		Port    string `json:"port"`
		Country string `json:"country"`
		HTTPS   string `json:"https"`
	} `json:"data"`
}

func (s *pubProxySource) Fetch(ctx context.Context, dl netutil.Downloader, opts FetchOptions) ([]model.Candidate, error) {
	limit := opts.Quantity
	if limit <= 0 || limit > 20 {
		limit = 20 // pubproxy caps page size
	}
	u := fmt.Sprintf("http://pubproxy.com/api/proxy?limit=%d&format=json&type=http", limit)
	if opts.Country != "" {
		u += "&country=" + url.QueryEscape(strings.ToUpper(opts.Country))
	}

	body, err := dl.Download(ctx, u)
	if err != nil {
		return nil, err
	}
	var resp pubProxyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("pubproxy: decode response: %w", err)
	}

	var out []model.Candidate
	for _, item := range resp.Data {
		if opts.Quantity > 0 && len(out) >= opts.Quantity {
			break
		}
		port, err := strconv.ParseUint(item.Port, 10, 16)
		if err != nil || port == 0 {
			continue
		}
		protocol := model.ProtocolHTTP
		if strings.EqualFold(item.HTTPS, "true") {
			protocol = model.ProtocolHTTPS
		}
		if !opts.wantsProtocol(protocol) {
			continue
		}
		out = append(out, model.Candidate{
			IP:       item.IP,
			Port:     uint16(port),
			Protocol: protocol,
			Country:  strings.ToUpper(item.Country),
			Source:   SourcePubProxy,
		})
	}
	return out, nil
}

// --- proxyscan ---

type proxyScanSource struct{}

func newProxyScanSource() Source { return &proxyScanSource{} }

func (s *proxyScanSource) ID() string { return SourceProxyScan }

// proxyScanTypes accepts the upstream "Type" field as either a single string
// or an array of strings.
type proxyScanTypes []string

func (t *proxyScanTypes) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*t = proxyScanTypes{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*t = proxyScanTypes(many)
	return nil
}

type proxyScanEntry struct {
	IP       string         `json:"Ip"`
	Port     uint16         `json:"Port"`
	Type     proxyScanTypes `json:"Type"`
	Location struct {
		CountryCode string `json:"countrycode"`
	} `json:"Location"`
}

func (s *proxyScanSource) Fetch(ctx context.Context, dl netutil.Downloader, opts FetchOptions) ([]model.Candidate, error) {
	limit := opts.Quantity
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	u := fmt.Sprintf("https://www.proxyscan.io/api/proxy?format=json&limit=%d", limit)
	if opts.Country != "" {
		u += "&country=" + url.QueryEscape(strings.ToUpper(opts.Country))
	}

	body, err := dl.Download(ctx, u)
	if err != nil {
		return nil, err
	}
	var entries []proxyScanEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("proxyscan: decode response: %w", err)
	}

	var out []model.Candidate
	for _, e := range entries {
		if opts.Quantity > 0 && len(out) >= opts.Quantity {
			break
		}
		if e.Port == 0 {
			continue
		}
		for _, typ := range e.Type {
			protocol := model.Protocol(strings.ToLower(typ))
			if !protocol.IsValid() || !opts.wantsProtocol(protocol) {
				continue
			}
			out = append(out, model.Candidate{
				IP:       e.IP,
				Port:     e.Port,
				Protocol: protocol,
				Country:  strings.ToUpper(e.Location.CountryCode),
				Source:   SourceProxyScan,
			})
			break // one candidate per entry, first matching protocol
		}
	}
	return out, nil
}
