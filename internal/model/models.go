// Package model defines the domain types shared across trawl packages.
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Protocol is the proxy wire protocol.
type Protocol string

const (
	ProtocolHTTP   Protocol = "http"
	ProtocolHTTPS  Protocol = "https"
	ProtocolSOCKS4 Protocol = "socks4"
	ProtocolSOCKS5 Protocol = "socks5"
)

// AllProtocols lists every supported protocol in canonical order.
var AllProtocols = []Protocol{ProtocolHTTP, ProtocolHTTPS, ProtocolSOCKS4, ProtocolSOCKS5}

// IsValid reports whether p is a known protocol.
func (p Protocol) IsValid() bool {
	switch p {
	case ProtocolHTTP, ProtocolHTTPS, ProtocolSOCKS4, ProtocolSOCKS5:
		return true
	}
	return false
}

// Anonymity classifies how much client information a proxy forwards.
type Anonymity string

const (
	AnonymityTransparent Anonymity = "transparent"
	AnonymityAnonymous   Anonymity = "anonymous"
	AnonymityElite       Anonymity = "elite"
)

// IsValid reports whether a is a known anonymity class.
func (a Anonymity) IsValid() bool {
	switch a {
	case AnonymityTransparent, AnonymityAnonymous, AnonymityElite:
		return true
	}
	return false
}

// ProxyRecord is a durable catalog entry. Identity is (IP, Port, Protocol).
type ProxyRecord struct {
	ID                string   `json:"id"`
	IP                string   `json:"ip"`
	Port              uint16   `json:"port"`
	Protocol          Protocol `json:"protocol"`
	Country           *string  `json:"country,omitempty"`
	Source            *string  `json:"source,omitempty"`
	Valid             bool     `json:"valid"`
	Anonymity         *string  `json:"anonymity,omitempty"`
	LastCheckedNs     *int64   `json:"last_checked_ns,omitempty"`
	AvgResponseTimeMs *float64 `json:"avg_response_time_ms,omitempty"`
	CreatedAtNs       int64    `json:"created_at_ns"`
	LastUpdatedNs     int64    `json:"last_updated_ns"`
}

// Addr returns the record's "ip:port" form.
func (r *ProxyRecord) Addr() string {
	return fmt.Sprintf("%s:%d", r.IP, r.Port)
}

// Line returns the record's "protocol://ip:port" form.
func (r *ProxyRecord) Line() string {
	return fmt.Sprintf("%s://%s:%d", r.Protocol, r.IP, r.Port)
}

// Candidate is a transient proxy tuple produced by a source adapter or
// parsed from a user-supplied line. Credentials are used during validation
// only and are never persisted.
type Candidate struct {
	IP       string
	Port     uint16
	Protocol Protocol
	Country  string // ISO2, empty when the source does not expose it
	Source   string
	Username string
	Password string
}

// Addr returns the candidate's "ip:port" form.
func (c Candidate) Addr() string {
	return fmt.Sprintf("%s:%d", c.IP, c.Port)
}

// URLTestOutcome is the per-URL outcome of one validation probe.
type URLTestOutcome struct {
	Success        bool   `json:"success"`
	StatusCode     *int   `json:"status_code,omitempty"`
	ResponseTimeMs *int64 `json:"response_time_ms,omitempty"`
}

// ValidationResult aggregates the outcome of validating one candidate.
type ValidationResult struct {
	Proxy             string                    `json:"proxy"`
	Protocol          Protocol                  `json:"protocol"`
	Valid             bool                      `json:"valid"`
	Anonymity         *string                   `json:"anonymity,omitempty"`
	AvgResponseTimeMs *int64                    `json:"avg_response_time_ms,omitempty"`
	TestResults       map[string]URLTestOutcome `json:"test_results"`
	Country           *string                   `json:"country,omitempty"`
	Error             *string                   `json:"error,omitempty"`
}

// Webhook is a registered event subscriber.
type Webhook struct {
	ID              string   `json:"id"`
	URL             string   `json:"url"`
	Events          []string `json:"events"`
	SecretKey       *string  `json:"secret_key,omitempty"`
	Active          bool     `json:"active"`
	CreatedAtNs     int64    `json:"created_at_ns"`
	LastTriggeredNs *int64   `json:"last_triggered_at_ns,omitempty"`
	Failures        int      `json:"failures"`
}

// ParseProxyLine parses "protocol://[user:pass@]ip:port" or "ip:port"
// (protocol defaults to http). Returns an error for lines that do not
// yield a host, a numeric in-range port, and a known protocol.
func ParseProxyLine(line string) (Candidate, error) {
	var c Candidate
	s := strings.TrimSpace(line)
	if s == "" {
		return c, fmt.Errorf("empty proxy line")
	}

	proto := ProtocolHTTP
	rest := s
	if i := strings.Index(s, "://"); i >= 0 {
		proto = Protocol(strings.ToLower(s[:i]))
		rest = s[i+3:]
	}
	if !proto.IsValid() {
		return c, fmt.Errorf("unknown protocol %q", string(proto))
	}

	if i := strings.LastIndex(rest, "@"); i >= 0 {
		cred := rest[:i]
		rest = rest[i+1:]
		if j := strings.Index(cred, ":"); j >= 0 {
			c.Username = cred[:j]
			c.Password = cred[j+1:]
		} else {
			c.Username = cred
		}
	}

	host, portStr, ok := strings.Cut(rest, ":")
	if !ok || host == "" {
		return c, fmt.Errorf("missing port in %q", line)
	}
	port, err := strconv.ParseUint(strings.TrimSpace(portStr), 10, 16)
	if err != nil || port == 0 {
		return c, fmt.Errorf("invalid port in %q", line)
	}

	c.IP = host
	c.Port = uint16(port)
	c.Protocol = proto
	return c, nil
}
