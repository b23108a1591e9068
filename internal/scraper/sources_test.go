package scraper

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/trawlhq/trawl/internal/model"
)

// fakeDownloader serves canned bodies by URL substring match.
type fakeDownloader struct {
	bodies map[string]string // substring -> body
	calls  []string
}

func (f *fakeDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	f.calls = append(f.calls, url)
	for sub, body := range f.bodies {
		if strings.Contains(url, sub) {
			return []byte(body), nil
		}
	}
	return nil, errors.New("no canned body for " + url)
}

func TestRawListSourceFetch(t *testing.T) {
	dl := &fakeDownloader{bodies: map[string]string{
		"http.txt":   "1.1.1.1:8080\r\n2.2.2.2:3128\nnot a proxy\n3.3.3.3:99999\n",
		"socks5.txt": "4.4.4.4:1080\n",
	}}
	src := newGitHubSpeedXSource()

	got, err := src.Fetch(context.Background(), dl, FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	// 2 parseable http rows + 1 socks5 row; bad port and garbage skipped.
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3: %+v", len(got), got)
	}
	for _, c := range got {
		if c.Source != SourceGitHubSpeedX {
			t.Fatalf("source = %q, want %q", c.Source, SourceGitHubSpeedX)
		}
	}
	if got[0].IP != "1.1.1.1" || got[0].Port != 8080 || got[0].Protocol != model.ProtocolHTTP {
		t.Fatalf("first = %+v", got[0])
	}
}

func TestRawListSourceProtocolFilterAndQuantity(t *testing.T) {
	dl := &fakeDownloader{bodies: map[string]string{
		"http.txt":   "1.1.1.1:80\n1.1.1.2:80\n1.1.1.3:80\n",
		"socks4.txt": "2.2.2.2:1080\n",
		"socks5.txt": "3.3.3.3:1080\n",
	}}
	src := newGitHubSpeedXSource()

	got, err := src.Fetch(context.Background(), dl, FetchOptions{
		Protocols: []model.Protocol{model.ProtocolSOCKS5},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 1 || got[0].Protocol != model.ProtocolSOCKS5 {
		t.Fatalf("got %+v, want single socks5 candidate", got)
	}
	// The http and socks4 endpoints must not even be fetched.
	for _, u := range dl.calls {
		if strings.Contains(u, "http.txt") || strings.Contains(u, "socks4") {
			t.Fatalf("unexpected fetch of %s", u)
		}
	}

	dl2 := &fakeDownloader{bodies: dl.bodies}
	got, err = src.Fetch(context.Background(), dl2, FetchOptions{Quantity: 2})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("quantity cap: len = %d, want 2", len(got))
	}
}

const proxyTableHTML = `
<html><body>
<table id="proxylisttable">
<thead><tr><th>IP</th><th>Port</th><th>Code</th><th>Country</th><th>Anonymity</th><th>Google</th><th>Https</th></tr></thead>
<tbody>
<tr><td>1.2.3.4</td><td>8080</td><td>x</td><td>US</td><td>elite proxy</td><td>no</td><td>yes</td></tr>
<tr><td>5.6.7.8</td><td>3128</td><td>x</td><td>BR</td><td>anonymous</td><td>no</td><td>no</td></tr>
<tr><td>9.9.9.9</td><td>oops</td><td>x</td><td>DE</td><td>elite proxy</td><td>no</td><td>no</td></tr>
</tbody>
</table>
</body></html>`

func TestHTMLTableSource(t *testing.T) {
	dl := &fakeDownloader{bodies: map[string]string{"free-proxy-list.net": proxyTableHTML}}
	src := newFreeProxyListSource()

	got, err := src.Fetch(context.Background(), dl, FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (bad port row skipped): %+v", len(got), got)
	}
	if got[0].Protocol != model.ProtocolHTTPS || got[0].Country != "US" {
		t.Fatalf("first row = %+v, want https US", got[0])
	}
	if got[1].Protocol != model.ProtocolHTTP || got[1].Country != "BR" {
		t.Fatalf("second row = %+v, want http BR", got[1])
	}
}

func TestHTMLTableSourceCountryFilter(t *testing.T) {
	dl := &fakeDownloader{bodies: map[string]string{"free-proxy-list.net": proxyTableHTML}}
	src := newFreeProxyListSource()

	got, err := src.Fetch(context.Background(), dl, FetchOptions{Country: "br"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 1 || got[0].IP != "5.6.7.8" {
		t.Fatalf("country filter: got %+v, want only 5.6.7.8", got)
	}
}

func TestPubProxySource(t *testing.T) {
	dl := &fakeDownloader{bodies: map[string]string{
		"pubproxy.com": `{"data":[
			{"ip":"1.1.1.1","port":"8080","country":"US","https":"true"},
			{"ip":"2.2.2.2","port":"80","country":"FR","https":"false"},
			{"ip":"3.3.3.3","port":"bad","country":"DE","https":"false"}
		]}`,
	}}
	src := newPubProxySource()

	got, err := src.Fetch(context.Background(), dl, FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Protocol != model.ProtocolHTTPS || got[1].Protocol != model.ProtocolHTTP {
		t.Fatalf("protocols = %s, %s", got[0].Protocol, got[1].Protocol)
	}
}

func TestProxyScanSourceTypeShapes(t *testing.T) {
	dl := &fakeDownloader{bodies: map[string]string{
		"proxyscan.io": `[
			{"Ip":"1.1.1.1","Port":8080,"Type":"HTTP","Location":{"countrycode":"us"}},
			{"Ip":"2.2.2.2","Port":1080,"Type":["SOCKS5","SOCKS4"],"Location":{"countrycode":"de"}}
		]`,
	}}
	src := newProxyScanSource()

	got, err := src.Fetch(context.Background(), dl, FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Protocol != model.ProtocolHTTP || got[0].Country != "US" {
		t.Fatalf("first = %+v", got[0])
	}
	if got[1].Protocol != model.ProtocolSOCKS5 {
		t.Fatalf("array type: protocol = %s, want socks5 (first match)", got[1].Protocol)
	}
}

func TestGatherProxyPortForms(t *testing.T) {
	dl := &fakeDownloader{bodies: map[string]string{
		"gatherproxy.com": `gp.insertPrx({"PROXY_IP":"1.2.3.4","PROXY_TYPE":"Elite","PROXY_PORT":"1F90"});
gp.insertPrx({"PROXY_IP":"5.6.7.8","PROXY_TYPE":"Elite","PROXY_PORT":"3128"});`,
	}}
	src := newGatherProxySource()

	got, err := src.Fetch(context.Background(), dl, FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Port != 0x1F90 {
		t.Fatalf("hex port = %d, want %d", got[0].Port, 0x1F90)
	}
	if got[1].Port != 3128 {
		t.Fatalf("decimal port = %d, want 3128", got[1].Port)
	}
}

func TestGatherProxySkipsWhenHTTPUnwanted(t *testing.T) {
	dl := &fakeDownloader{}
	got, err := newGatherProxySource().Fetch(context.Background(), dl, FetchOptions{
		Protocols: []model.Protocol{model.ProtocolSOCKS5},
	})
	if err != nil || len(got) != 0 {
		t.Fatalf("got %v, %v; want empty, nil", got, err)
	}
	if len(dl.calls) != 0 {
		t.Fatal("should not fetch when http is filtered out")
	}
}

func TestSpysOneLoosePatterns(t *testing.T) {
	dl := &fakeDownloader{bodies: map[string]string{
		"spys.one": `<tr><td>185.44.1.2:8080</td></tr> noise 10.0.0.1:3128 <b>1.2.3:99</b>`,
	}}
	got, err := newSpysOneSource().Fetch(context.Background(), dl, FetchOptions{Quantity: 10})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(got), got)
	}
	if got[0].Addr() != "185.44.1.2:8080" {
		t.Fatalf("first = %s", got[0].Addr())
	}
}
