package validator

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/sagernet/sing/common"
	M "github.com/sagernet/sing/common/metadata"

	"github.com/trawlhq/trawl/internal/model"
)

// ErrSocksUnavailable is reported when no SOCKS-capable dialer can be built
// for a socks4/socks5 candidate. Probes must fail rather than silently
// bypass the proxy.
var ErrSocksUnavailable = fmt.Errorf("socks transport unavailable")

// TransportFactory yields an http.RoundTripper that routes every request
// through the candidate proxy, plus a release func for the underlying dialer.
type TransportFactory interface {
	Transport(c model.Candidate) (http.RoundTripper, func(), error)
}

// OutboundTransportFactory builds per-candidate transports on top of
// sing-box outbounds.
type OutboundTransportFactory struct {
	Builder OutboundBuilder
}

// Transport builds the candidate's transport. Each probe gets a fresh
// connection; keep-alives are disabled so measurements stay independent.
func (f *OutboundTransportFactory) Transport(c model.Candidate) (http.RoundTripper, func(), error) {
	if f.Builder == nil {
		if c.Protocol == model.ProtocolSOCKS4 || c.Protocol == model.ProtocolSOCKS5 {
			return nil, nil, ErrSocksUnavailable
		}
		return nil, nil, fmt.Errorf("no outbound builder configured")
	}

	ob, err := f.Builder.Build(c)
	if err != nil {
		if c.Protocol == model.ProtocolSOCKS4 || c.Protocol == model.ProtocolSOCKS5 {
			return nil, nil, fmt.Errorf("%w: %v", ErrSocksUnavailable, err)
		}
		return nil, nil, err
	}

	tr := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return ob.DialContext(ctx, network, M.ParseSocksaddr(addr))
		},
		DisableKeepAlives: true,
	}
	release := func() {
		tr.CloseIdleConnections()
		_ = common.Close(ob)
	}
	return tr, release, nil
}
