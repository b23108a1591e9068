package validator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sagernet/sing-box/adapter"
	"github.com/sagernet/sing-box/adapter/endpoint"
	"github.com/sagernet/sing-box/adapter/inbound"
	sbOutbound "github.com/sagernet/sing-box/adapter/outbound"
	"github.com/sagernet/sing-box/dns"
	"github.com/sagernet/sing-box/include"
	"github.com/sagernet/sing-box/log"
	"github.com/sagernet/sing-box/option"
	"github.com/sagernet/sing/common"
	sJson "github.com/sagernet/sing/common/json"
	"github.com/sagernet/sing/service"

	"github.com/trawlhq/trawl/internal/model"
)

// OutboundBuilder turns candidate proxies into dialable sing-box outbounds.
type OutboundBuilder interface {
	Build(c model.Candidate) (adapter.Outbound, error)
	Close() error
}

// SingboxBuilder builds real sing-box outbound instances. It holds a
// fully-wired context with DNS services so that domain-based proxy hosts
// can be resolved.
type SingboxBuilder struct {
	registry            *sbOutbound.Registry
	ctx                 context.Context
	logFactory          log.Factory
	dnsTransportManager *dns.TransportManager
	dnsRouter           *dns.Router
}

// NewSingboxBuilder creates a SingboxBuilder with a complete sing-box service
// graph (registries + DNS). The caller must call Close() when done.
func NewSingboxBuilder() (*SingboxBuilder, error) {
	ctx := context.Background()
	ctx = include.Context(ctx) // inject protocol registries

	logFactory := log.NewNOPFactory()
	logger := logFactory.NewLogger("trawl-outbound")

	endpointMgr := endpoint.NewManager(logger, service.FromContext[adapter.EndpointRegistry](ctx))
	service.MustRegister[adapter.EndpointManager](ctx, endpointMgr)

	// Inbound manager is a required dependency even though unused here.
	inboundMgr := inbound.NewManager(logger, service.FromContext[adapter.InboundRegistry](ctx), endpointMgr)
	service.MustRegister[adapter.InboundManager](ctx, inboundMgr)

	outboundMgr := sbOutbound.NewManager(logger, service.FromContext[adapter.OutboundRegistry](ctx), endpointMgr, "")
	service.MustRegister[adapter.OutboundManager](ctx, outboundMgr)

	dnsTransportMgr := dns.NewTransportManager(logger, service.FromContext[adapter.DNSTransportRegistry](ctx), outboundMgr, "")
	service.MustRegister[adapter.DNSTransportManager](ctx, dnsTransportMgr)

	dnsRouter := dns.NewRouter(ctx, logFactory, option.DNSOptions{})
	service.MustRegister[adapter.DNSRouter](ctx, dnsRouter)

	if err := dnsTransportMgr.Create(ctx, logger, "local", "local", &option.LocalDNSServerOptions{}); err != nil {
		return nil, fmt.Errorf("outbound builder: create local DNS transport: %w", err)
	}
	if err := dnsTransportMgr.Start(adapter.StartStateInitialize); err != nil {
		return nil, fmt.Errorf("outbound builder: initialize DNS transport manager: %w", err)
	}
	if err := dnsTransportMgr.Start(adapter.StartStateStart); err != nil {
		_ = dnsTransportMgr.Close()
		return nil, fmt.Errorf("outbound builder: start DNS transport manager: %w", err)
	}
	if err := dnsRouter.Initialize(nil); err != nil {
		_ = dnsTransportMgr.Close()
		return nil, fmt.Errorf("outbound builder: initialize DNS router: %w", err)
	}
	if err := dnsRouter.Start(adapter.StartStateStart); err != nil {
		_ = dnsRouter.Close()
		_ = dnsTransportMgr.Close()
		return nil, fmt.Errorf("outbound builder: start DNS router: %w", err)
	}

	registry := service.FromContext[adapter.OutboundRegistry](ctx).(*sbOutbound.Registry)

	return &SingboxBuilder{
		registry:            registry,
		ctx:                 ctx,
		logFactory:          logFactory,
		dnsTransportManager: dnsTransportMgr,
		dnsRouter:           dnsRouter,
	}, nil
}

// candidateOutboundOptions maps a candidate onto a sing-box outbound config.
// http and https candidates both dial through an http CONNECT proxy; socks
// candidates use the socks outbound with the matching protocol version.
func candidateOutboundOptions(c model.Candidate) (json.RawMessage, error) {
	opts := map[string]any{
		"tag":         "probe-" + c.Addr(),
		"server":      c.IP,
		"server_port": int(c.Port),
	}
	switch c.Protocol {
	case model.ProtocolHTTP, model.ProtocolHTTPS:
		opts["type"] = "http"
	case model.ProtocolSOCKS4:
		opts["type"] = "socks"
		opts["version"] = "4"
	case model.ProtocolSOCKS5:
		opts["type"] = "socks"
		opts["version"] = "5"
	default:
		return nil, fmt.Errorf("unsupported proxy protocol %q", c.Protocol)
	}
	if c.Username != "" {
		opts["username"] = c.Username
	}
	if c.Password != "" {
		opts["password"] = c.Password
	}
	return json.Marshal(opts)
}

// Build parses the candidate's outbound config into a real adapter.Outbound
// and runs it through the lifecycle start stages.
func (b *SingboxBuilder) Build(c model.Candidate) (adapter.Outbound, error) {
	rawOptions, err := candidateOutboundOptions(c)
	if err != nil {
		return nil, err
	}

	var outboundConfig option.Outbound
	if err := sJson.UnmarshalContext(b.ctx, rawOptions, &outboundConfig); err != nil {
		return nil, fmt.Errorf("parse outbound options: %w", err)
	}

	logger := b.logFactory.NewLogger("outbound/" + outboundConfig.Type)
	ob, err := b.registry.CreateOutbound(
		b.ctx,
		nil, // router is not needed for plain dialing
		logger,
		outboundConfig.Tag,
		outboundConfig.Type,
		outboundConfig.Options,
	)
	if err != nil {
		return nil, fmt.Errorf("create outbound [%s]: %w", outboundConfig.Type, err)
	}

	for _, stage := range adapter.ListStartStages {
		if err := adapter.LegacyStart(ob, stage); err != nil {
			_ = common.Close(ob)
			return nil, fmt.Errorf("outbound start %s [%s]: %w", stage, outboundConfig.Type, err)
		}
	}
	return ob, nil
}

// Close shuts down the builder's internal DNS services.
func (b *SingboxBuilder) Close() error {
	var errs []error
	if b.dnsRouter != nil {
		errs = append(errs, b.dnsRouter.Close())
	}
	if b.dnsTransportManager != nil {
		errs = append(errs, b.dnsTransportManager.Close())
	}
	return errors.Join(errs...)
}
