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
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"
)

// runInit executes the 'init' CLI command, creating a .cie/project.yaml configuration file.
//
// It creates the configuration directory, generates a default configuration, and optionally
// prompts the user for customization in interactive mode.
//
// Flags:
//   - --force: Overwrite existing configuration (default: false)
//   - -y: Non-interactive mode, use all defaults (default: false)
//   - --project-id: Project identifier (default: directory name)
//   - --repo: Source repository, "owner/repo" for GitHub or a path for local (default: ".")
//   - --ref: Branch, tag, or commit to index (default: repository default branch)
//   - --embedding-provider: Embedding provider (ollama, openai, nomic, mock)
//   - --chat-provider: Chat/LLM provider (ollama, openai, anthropic, mock)
//
// Examples:
//
//	cie init                            Interactive setup, indexes the current directory
//	cie init -y                         Use all defaults
//	cie init --repo kraklabs/repoindex  Index a GitHub repository instead
func runInit(args []string) {
	flags := parseInitFlags(args)

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot get current directory: %v\n", err)
		os.Exit(1)
	}

	configPath := ConfigPath(cwd)
	if _, err := os.Stat(configPath); err == nil && !flags.force {
		fmt.Fprintf(os.Stderr, "Error: %s already exists. Use --force to overwrite.\n", configPath)
		os.Exit(1)
	}

	cfg := createInitConfig(cwd, flags)
	reader := bufio.NewReader(os.Stdin)

	if !flags.nonInteractive {
		runInteractiveConfig(reader, cfg)
	}

	saveInitConfig(cwd, configPath, cfg)
	printNextSteps()
}

// initFlags holds parsed flags for the init command.
type initFlags struct {
	force, nonInteractive                    bool
	projectID, repo, ref                     string
	embeddingProvider, chatProvider, chatURL string
	chatModel, chatAPIKey                    string
}

func parseInitFlags(args []string) initFlags {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	var f initFlags
	fs.BoolVar(&f.force, "force", false, "Overwrite existing configuration")
	fs.BoolVar(&f.nonInteractive, "y", false, "Non-interactive mode (use defaults)")
	fs.StringVar(&f.projectID, "project-id", "", "Project identifier")
	fs.StringVar(&f.repo, "repo", "", "Repository source: a local path, or owner/repo for GitHub")
	fs.StringVar(&f.ref, "ref", "", "Branch, tag, or commit to index (default: repository default branch)")
	fs.StringVar(&f.embeddingProvider, "embedding-provider", "", "Embedding provider (ollama, openai, nomic, mock)")
	fs.StringVar(&f.chatProvider, "chat-provider", "", "Chat provider for summaries and queries (ollama, openai, anthropic, mock)")
	fs.StringVar(&f.chatURL, "chat-url", "", "Chat API base URL (for ollama/openai-compatible providers)")
	fs.StringVar(&f.chatModel, "chat-model", "", "Chat model name")
	fs.StringVar(&f.chatAPIKey, "chat-api-key", "", "Chat API key (optional for local models)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie init [options]

Creates .cie/project.yaml configuration file.

Examples:
  cie init                              # Index the current directory, mock providers
  cie init --repo kraklabs/repoindex    # Index a GitHub repository
  cie init --chat-provider ollama --chat-url http://localhost:11434 -y

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	return f
}

func createInitConfig(cwd string, f initFlags) *Config {
	pid := f.projectID
	if pid == "" {
		pid = filepath.Base(cwd)
	}
	cfg := DefaultConfig(pid)
	if f.repo != "" {
		cfg.RepoSource = RepoSourceConfig{Type: sourceTypeForRepo(f.repo), Value: f.repo, Ref: f.ref}
	} else if f.ref != "" {
		cfg.RepoSource.Ref = f.ref
	}
	if f.embeddingProvider != "" {
		cfg.Embedding.Provider = f.embeddingProvider
	}
	if f.chatProvider != "" {
		cfg.Chat.Provider = f.chatProvider
	}
	if f.chatURL != "" {
		cfg.Chat.BaseURL = f.chatURL
	}
	if f.chatModel != "" {
		cfg.Chat.Model = f.chatModel
	}
	if f.chatAPIKey != "" {
		cfg.Chat.APIKey = f.chatAPIKey
	}
	return cfg
}

// sourceTypeForRepo guesses the repo source type from its value: a bare
// "owner/repo" (no scheme, no path separators beyond the one) is treated as
// GitHub; anything containing "://" or ending in ".git" is a git URL;
// everything else is a local path.
func sourceTypeForRepo(value string) string {
	if strings.Contains(value, "://") || strings.HasSuffix(value, ".git") {
		return "git_url"
	}
	if parts := strings.Split(value, "/"); len(parts) == 2 && !strings.HasPrefix(value, ".") && !strings.HasPrefix(value, "/") {
		return "github"
	}
	return "local_path"
}

func runInteractiveConfig(reader *bufio.Reader, cfg *Config) {
	fmt.Println("CIE Project Configuration")
	fmt.Println("=========================")
	fmt.Println()

	cfg.ProjectID = prompt(reader, "Project ID", cfg.ProjectID)

	fmt.Println()
	fmt.Println("Repository source: a local path, or owner/repo for GitHub")
	cfg.RepoSource.Value = prompt(reader, "Repository", cfg.RepoSource.Value)
	cfg.RepoSource.Type = sourceTypeForRepo(cfg.RepoSource.Value)
	if cfg.RepoSource.Type == "local_path" && cfg.RepoSource.Value == "." {
		cfg.RepoSource.Type = "local_path"
	}

	fmt.Println()
	fmt.Println("Embedding providers: ollama, openai, nomic, mock")
	cfg.Embedding.Provider = prompt(reader, "Embedding provider", cfg.Embedding.Provider)
	if cfg.Embedding.Provider == "ollama" || cfg.Embedding.Provider == "openai" {
		cfg.Embedding.BaseURL = prompt(reader, "Embedding API URL", cfg.Embedding.BaseURL)
		cfg.Embedding.Model = prompt(reader, "Embedding model", cfg.Embedding.Model)
	}

	promptChatConfig(reader, cfg)
	fmt.Println()
}

func promptChatConfig(reader *bufio.Reader, cfg *Config) {
	fmt.Println()
	fmt.Println("Chat/LLM configuration (for file summaries, repo overviews, and 'cie ask')")
	fmt.Println("Providers: ollama, openai, anthropic, mock")
	fmt.Println()

	cfg.Chat.Provider = prompt(reader, "Chat provider", cfg.Chat.Provider)
	if cfg.Chat.Provider != "mock" {
		cfg.Chat.BaseURL = prompt(reader, "Chat API URL (leave empty for provider default)", cfg.Chat.BaseURL)
		cfg.Chat.Model = prompt(reader, "Chat model name", cfg.Chat.Model)
		cfg.Chat.APIKey = prompt(reader, "Chat API key (optional for local models)", cfg.Chat.APIKey)
	}
}

func saveInitConfig(cwd, configPath string, cfg *Config) {
	cieDir := ConfigDir(cwd)
	if err := os.MkdirAll(cieDir, 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot create .cie directory: %v\n", err)
		os.Exit(1)
	}
	if err := SaveConfig(cfg, configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot save configuration: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Created %s\n", configPath)
	addToGitignore(cwd)
}

func printNextSteps() {
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Review and edit .cie/project.yaml if needed")
	fmt.Println("  2. Run 'cie index' to index your repository")
	fmt.Println("  3. Run 'cie status' to verify indexing")
	fmt.Println("  4. Run 'cie ask \"<question>\"' to query the indexed code")
}

// prompt displays an interactive prompt and reads user input from stdin.
//
// If the user presses Enter without providing input, the defaultValue is returned.
func prompt(reader *bufio.Reader, label, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", label, defaultValue)
	} else {
		fmt.Printf("%s: ", label)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultValue
	}
	return input
}

// addToGitignore adds .cie/ to the project's .gitignore file if not already present.
func addToGitignore(dir string) {
	gitignorePath := filepath.Join(dir, ".gitignore")

	content, err := os.ReadFile(gitignorePath) //nolint:gosec // G304: gitignorePath built from repo dir
	if err != nil {
		return
	}

	lines := strings.Split(string(content), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == ".cie/" || line == ".cie" || line == "/.cie/" || line == "/.cie" {
			return
		}
	}

	f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // G304: gitignorePath built from repo dir
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()

	if len(content) > 0 && content[len(content)-1] != '\n' {
		_, _ = f.WriteString("\n")
	}

	_, _ = f.WriteString("\n# CIE configuration\n.cie/\n")
	fmt.Println("Added .cie/ to .gitignore")
}
