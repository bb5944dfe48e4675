package scraping

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// configWire is the JSON shape fetched from an HTTPConfigSource. Weights
// need an explicit domain order since JSON objects carry none.
type configWire struct {
	Domains                   []string                          `json:"domains"`
	Weights                   map[string]float64                `json:"weights"`
	EnabledModules            map[string][]string                `json:"enabled_modules"`
	KeywordSources            map[string][]string                `json:"keyword_sources"`
	GenericModulesParameters  map[string]interface{}             `json:"generic_modules_parameters"`
	SpecificModulesParameters map[string]map[string]interface{}  `json:"specific_modules_parameters"`
}

// HTTPConfigSource fetches the scrapers configuration snapshot from a
// JSON endpoint (§3: "provided externally... treated as a snapshot
// fetched per tick").
type HTTPConfigSource struct {
	Client *http.Client
	URL    string
}

// NewHTTPConfigSource builds a source with a 10s timeout client, matching
// the version store's upstream fetch default (§5).
func NewHTTPConfigSource(url string) *HTTPConfigSource {
	return &HTTPConfigSource{Client: &http.Client{Timeout: 10 * time.Second}, URL: url}
}

func (s *HTTPConfigSource) FetchScrapersConfiguration(ctx context.Context) (ScrapersConfiguration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return ScrapersConfiguration{}, fmt.Errorf("building scrapers configuration request: %w", err)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return ScrapersConfiguration{}, fmt.Errorf("fetching scrapers configuration: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ScrapersConfiguration{}, fmt.Errorf("scrapers configuration endpoint returned %d", resp.StatusCode)
	}

	var wire configWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return ScrapersConfiguration{}, fmt.Errorf("decoding scrapers configuration: %w", err)
	}

	return ScrapersConfiguration{
		DomainOrder:               wire.Domains,
		Weights:                   wire.Weights,
		EnabledModules:            wire.EnabledModules,
		KeywordSources:            wire.KeywordSources,
		GenericModulesParameters:  wire.GenericModulesParameters,
		SpecificModulesParameters: wire.SpecificModulesParameters,
	}, nil
}
