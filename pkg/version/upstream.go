package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// UpstreamTag is one tag as reported by the upstream tag service (the
// GitHub tags API, in production).
type UpstreamTag struct {
	Name       string `json:"name"`
	ZipballURL string `json:"zipball_url"`
	TarballURL string `json:"tarball_url"`
	Commit     struct {
		URL string `json:"url"`
	} `json:"commit"`
}

// UpstreamTagSource fetches the tag list for a repository path
// ("owner/repo"). Tags may be returned in any order; Sync drops
// pre-releases and GetLatestValidTagsForAllRepos picks the maximum.
type UpstreamTagSource interface {
	FetchTags(ctx context.Context, repositoryPath string) ([]UpstreamTag, error)
}

// GithubTagSource is the default UpstreamTagSource, talking to the GitHub
// REST API directly (§4.2).
type GithubTagSource struct {
	Client  *http.Client
	BaseURL string // overridable for tests
}

// NewGithubTagSource builds a GithubTagSource with a 10s timeout client,
// matching the default upstream tag fetch timeout of §5.
func NewGithubTagSource() *GithubTagSource {
	return &GithubTagSource{
		Client:  &http.Client{Timeout: 10 * time.Second},
		BaseURL: "https://api.github.com",
	}
}

func (g *GithubTagSource) FetchTags(ctx context.Context, repositoryPath string) ([]UpstreamTag, error) {
	url := fmt.Sprintf("%s/repos/%s/tags", g.BaseURL, repositoryPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building tag request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching tags for %s: %w", repositoryPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetching tags for %s: upstream returned %d", repositoryPath, resp.StatusCode)
	}

	var tags []UpstreamTag
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decoding tags for %s: %w", repositoryPath, err)
	}
	return tags, nil
}
