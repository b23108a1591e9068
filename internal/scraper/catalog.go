package scraper

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/trawlhq/trawl/internal/model"
)

// sourcesFile is the YAML shape for operator-supplied raw list sources:
//
//	sources:
//	  - id: my-list
//	    urls:
//	      http: https://example.com/http.txt
//	      socks5: https://example.com/socks5.txt
type sourcesFile struct {
	Sources []struct {
		ID   string            `yaml:"id"`
		URLs map[string]string `yaml:"urls"`
	} `yaml:"sources"`
}

// LoadExtraSources reads an operator source catalog. The sources behave like
// the built-in raw text list adapters.
func LoadExtraSources(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sources file %s: %w", path, err)
	}

	var out []Source
	for i, def := range f.Sources {
		if def.ID == "" {
			return nil, fmt.Errorf("sources file %s: source %d: missing id", path, i)
		}
		if len(def.URLs) == 0 {
			return nil, fmt.Errorf("sources file %s: source %q: no urls", path, def.ID)
		}
		src := &rawListSource{id: def.ID}
		for _, proto := range model.AllProtocols {
			if u, ok := def.URLs[string(proto)]; ok {
				src.urls = append(src.urls, protocolURL{protocol: proto, url: u})
			}
		}
		if len(src.urls) == 0 {
			return nil, fmt.Errorf("sources file %s: source %q: no valid protocol keys", path, def.ID)
		}
		out = append(out, src)
	}
	return out, nil
}
