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

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RepoSourceConfig describes where project.yaml tells 'cie index' to pull a
// repository's contents from.
type RepoSourceConfig struct {
	Type  string `yaml:"type"`            // "local_path", "github", "git_url"
	Value string `yaml:"value"`           // path, "owner/repo", or clone URL
	Ref   string `yaml:"ref,omitempty"`   // branch/tag/sha; default branch if empty
}

// EmbeddingConfig configures the embedding provider used at index time.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "ollama", "openai", "nomic", "mock"
	BaseURL  string `yaml:"base_url,omitempty"`
	Model    string `yaml:"model,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
}

// ChatConfig configures the LLM provider used for summaries, overviews, and
// the query orchestrator.
type ChatConfig struct {
	Provider  string `yaml:"provider"` // "ollama", "openai", "anthropic", "mock", ...
	BaseURL   string `yaml:"base_url,omitempty"`
	Model     string `yaml:"model,omitempty"`
	APIKey    string `yaml:"api_key,omitempty"`
	MaxTokens int    `yaml:"max_tokens,omitempty"`
}

// IndexingConfig holds the tunable knobs surfaced in project.yaml; anything
// not set here falls back to ingestion.DefaultConfig().
type IndexingConfig struct {
	ParserMode  string   `yaml:"parser_mode,omitempty"` // "treesitter", "simplified", "auto"
	Exclude     []string `yaml:"exclude,omitempty"`
	MaxFileSize int64    `yaml:"max_file_size,omitempty"`
}

// Config is the contents of .cie/project.yaml.
type Config struct {
	ProjectID string            `yaml:"project_id"`
	RepoSource RepoSourceConfig `yaml:"repo_source"`
	Embedding EmbeddingConfig   `yaml:"embedding"`
	Chat      ChatConfig        `yaml:"chat"`
	Indexing  IndexingConfig    `yaml:"indexing"`
}

// DefaultConfig returns a Config with sane defaults for a new project: local
// filesystem source rooted at the current directory, mock providers that
// work with no external services, and no excludes beyond the ingestion
// package's own defaults.
func DefaultConfig(projectID string) *Config {
	return &Config{
		ProjectID: projectID,
		RepoSource: RepoSourceConfig{
			Type:  "local_path",
			Value: ".",
		},
		Embedding: EmbeddingConfig{
			Provider: "mock",
		},
		Chat: ChatConfig{
			Provider:  "mock",
			MaxTokens: 2000,
		},
		Indexing: IndexingConfig{
			ParserMode: "auto",
		},
	}
}

// ConfigDir returns the .cie directory for a project rooted at dir.
func ConfigDir(dir string) string {
	return filepath.Join(dir, ".cie")
}

// ConfigPath returns the project.yaml path for a project rooted at dir.
func ConfigPath(dir string) string {
	return filepath.Join(ConfigDir(dir), "project.yaml")
}

// LoadConfig reads and parses project.yaml. An empty path resolves to
// ConfigPath(cwd).
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("cannot get current directory: %w", err)
		}
		path = ConfigPath(cwd)
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is operator-supplied or derived from cwd
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no configuration found at %s - run 'cie init' first", path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("%s: project_id is required", path)
	}
	return &cfg, nil
}

// SaveConfig writes cfg as YAML to path, creating parent directories as
// needed.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// DataDir returns the SQLite-backed data directory for a project:
// ~/.cie/data/<project_id>/.
func DataDir(projectID string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".cie", "data", projectID), nil
}

// StorePath returns the SQLite database file path for a project.
func StorePath(projectID string) (string, error) {
	dir, err := DataDir(projectID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cie.db"), nil
}
