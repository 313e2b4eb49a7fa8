// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"log/slog"
)

// RepoMetadata is the subset of GitHub repository metadata the pipeline
// stores alongside a repository's index.
type RepoMetadata struct {
	Owner         string
	Name          string
	Description   string
	DefaultBranch string
	Stars         int
	Forks         int
}

// GitHubFetcher fetches repository metadata and contents through the GitHub
// REST API, rather than shelling out to git. It is used for RepoSource{Type:
// "github"}; git_url and local_path sources continue to go through
// RepoLoader's clone/walk path.
type GitHubFetcher struct {
	httpClient *http.Client
	baseURL    string // overridable for tests
	token      string
	logger     *slog.Logger
}

// NewGitHubFetcher creates a fetcher. token may be empty for unauthenticated
// (rate-limited) access.
func NewGitHubFetcher(token string, logger *slog.Logger) *GitHubFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &GitHubFetcher{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://api.github.com",
		token:      token,
		logger:     logger,
	}
}

// ParseOwnerRepo splits a "owner/repo" locator into its parts.
func ParseOwnerRepo(value string) (owner, repo string, err error) {
	value = strings.TrimSuffix(strings.TrimSpace(value), ".git")
	value = strings.TrimPrefix(value, "https://github.com/")
	value = strings.TrimPrefix(value, "github.com/")
	parts := strings.SplitN(value, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid github repo locator %q, expected owner/repo", value)
	}
	return parts[0], parts[1], nil
}

func (f *GitHubFetcher) doJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github api %s: status %d: %s", url, resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}

// FetchMetadata retrieves repository metadata via GET /repos/{owner}/{repo}.
func (f *GitHubFetcher) FetchMetadata(ctx context.Context, owner, repo string) (*RepoMetadata, error) {
	var resp struct {
		Name             string `json:"name"`
		FullName         string `json:"full_name"`
		Description      string `json:"description"`
		DefaultBranch    string `json:"default_branch"`
		StargazersCount  int    `json:"stargazers_count"`
		ForksCount       int    `json:"forks_count"`
		Owner            struct {
			Login string `json:"login"`
		} `json:"owner"`
	}
	url := fmt.Sprintf("%s/repos/%s/%s", f.baseURL, owner, repo)
	if err := f.doJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("fetch repo metadata: %w", err)
	}
	return &RepoMetadata{
		Owner:         owner,
		Name:          resp.Name,
		Description:   resp.Description,
		DefaultBranch: resp.DefaultBranch,
		Stars:         resp.StargazersCount,
		Forks:         resp.ForksCount,
	}, nil
}

type treeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"` // "blob" or "tree"
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
}

// FetchTree retrieves the recursive file tree for a ref. It tries ref (when
// given), then "main", then "master", moving to the next candidate after any
// request error, and returns the first tree that is fetched successfully.
func (f *GitHubFetcher) FetchTree(ctx context.Context, owner, repo, ref string) (resolvedRef string, entries []treeEntry, err error) {
	candidates := []string{}
	if ref != "" {
		candidates = append(candidates, ref)
	}
	candidates = append(candidates, "main", "master")

	var lastErr error
	for _, candidate := range candidates {
		var resp struct {
			Tree []treeEntry `json:"tree"`
		}
		url := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", f.baseURL, owner, repo, candidate)
		if err := f.doJSON(ctx, url, &resp); err != nil {
			lastErr = err
			continue
		}
		return candidate, resp.Tree, nil
	}
	return "", nil, fmt.Errorf("fetch tree for %s/%s: all branch candidates failed: %w", owner, repo, lastErr)
}

// FetchRawContent retrieves a single file's raw content via
// raw.githubusercontent.com. Returns ok=false (not an error) for content
// that fails a UTF-8 decode, so callers can soft-skip binary/invalid files.
func (f *GitHubFetcher) FetchRawContent(ctx context.Context, owner, repo, ref, path string) (content string, ok bool, err error) {
	url := fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s/%s", owner, repo, ref, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, err
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("fetch raw content %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("fetch raw content %s: status %d", path, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, err
	}
	if !utf8.Valid(body) {
		return "", false, nil
	}
	return string(body), true, nil
}

// FetchToDir downloads the repository's blob tree into a local temp
// directory and returns the root path plus the resolved metadata, so the
// rest of the pipeline (RepoLoader.walkRepository and friends) can run
// against it exactly as it would against a git clone.
func (f *GitHubFetcher) FetchToDir(ctx context.Context, source RepoSource, inclusionDenylist []string) (rootPath string, meta *RepoMetadata, resolvedRef string, err error) {
	owner, repo, err := ParseOwnerRepo(source.Value)
	if err != nil {
		return "", nil, "", err
	}

	meta, err = f.FetchMetadata(ctx, owner, repo)
	if err != nil {
		return "", nil, "", err
	}

	ref := source.Ref
	if ref == "" {
		ref = meta.DefaultBranch
	}
	resolvedRef, entries, err := f.FetchTree(ctx, owner, repo, ref)
	if err != nil {
		return "", nil, "", err
	}

	tmpDir, err := os.MkdirTemp("", "cie-github-*")
	if err != nil {
		return "", nil, "", fmt.Errorf("create temp dir: %w", err)
	}

	for _, entry := range entries {
		if entry.Type != "blob" {
			continue
		}
		if matchesAnyDenylistGlob(entry.Path, inclusionDenylist) {
			continue
		}
		content, ok, err := f.FetchRawContent(ctx, owner, repo, resolvedRef, entry.Path)
		if err != nil {
			f.logger.Warn("github.fetch.file_error", "path", entry.Path, "err", err)
			continue
		}
		if !ok {
			continue
		}
		dest := filepath.Join(tmpDir, filepath.FromSlash(entry.Path))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			_ = os.RemoveAll(tmpDir)
			return "", nil, "", err
		}
		if err := os.WriteFile(dest, []byte(content), 0o644); err != nil {
			_ = os.RemoveAll(tmpDir)
			return "", nil, "", err
		}
	}

	return tmpDir, meta, resolvedRef, nil
}

func matchesAnyDenylistGlob(path string, globs []string) bool {
	for _, g := range globs {
		if matchesGlob(path, g) {
			return true
		}
	}
	return false
}
