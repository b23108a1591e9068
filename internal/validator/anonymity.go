package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/textproto"

	"github.com/trawlhq/trawl/internal/config"
	"github.com/trawlhq/trawl/internal/model"
)

// AnonymityChecker classifies a proxy by fetching a header-reflection
// endpoint through it and inspecting which forwarding headers survive.
type AnonymityChecker struct {
	ProbeURL string
	Mode     string // config.AnonymityModeBasic or config.AnonymityModeEnhanced
}

func NewAnonymityChecker(probeURL, mode string) *AnonymityChecker {
	return &AnonymityChecker{ProbeURL: probeURL, Mode: mode}
}

// headersEnvelope matches the httpbin.org/headers response shape.
type headersEnvelope struct {
	Headers map[string]string `json:"headers"`
}

// Check fetches the reflection endpoint through client and classifies the
// proxy. Headers revealing the client address make it transparent; headers
// revealing proxy use make it anonymous; a clean set is elite.
func (a *AnonymityChecker) Check(ctx context.Context, client *http.Client) (model.Anonymity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.ProbeURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anonymity probe returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	var env headersEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("decode anonymity probe body: %w", err)
	}
	return a.classify(env.Headers), nil
}

func (a *AnonymityChecker) classify(headers map[string]string) model.Anonymity {
	canonical := make(map[string]bool, len(headers))
	for k := range headers {
		canonical[textproto.CanonicalMIMEHeaderKey(k)] = true
	}

	revealing := []string{"X-Forwarded-For"}
	proxying := []string{"Via"}
	if a.Mode == config.AnonymityModeEnhanced {
		revealing = append(revealing, "Forwarded", "X-Real-Ip")
		proxying = append(proxying, "Proxy-Connection")
	}

	for _, h := range revealing {
		if canonical[h] {
			return model.AnonymityTransparent
		}
	}
	for _, h := range proxying {
		if canonical[h] {
			return model.AnonymityAnonymous
		}
	}
	return model.AnonymityElite
}
