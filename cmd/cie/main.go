// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package main implements the CIE CLI for indexing repositories and
// answering questions about them grounded in their indexed code.
//
// Usage:
//
//	cie init                      Create .cie/project.yaml configuration
//	cie index                     Index the current repository
//	cie status [--json]           Show project status
//	cie ask "<question>" [--json] Answer a question about the repository
//	cie reset --yes               Delete local indexed data
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
)

// Version information (set via ldflags during build)
var (
	version = "dev"     // Version string
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// GlobalFlags holds the flags that apply across commands and shape how
// progress and output are rendered, independent of each command's own
// flag set.
type GlobalFlags struct {
	JSON    bool
	Quiet   bool
	NoColor bool
	Verbose int
}

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version and exit")
		configPath  = flag.String("config", "", "Path to .cie/project.yaml (default: ./.cie/project.yaml)")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress progress output")
		noColor     = flag.Bool("no-color", false, "Disable colored output")
		verbose     = flag.CountP("verbose", "v", "Increase log verbosity (-v, -vv)")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `CIE - Code Intelligence Engine CLI

Usage:
  cie <command> [options]

Commands:
  init     Create .cie/project.yaml configuration
  index    Index the current repository
  status   Show project status
  ask      Answer a question about the indexed repository
  reset    Reset local project data (destructive!)

Global Options:
  --config      Path to .cie/project.yaml
  -q, --quiet   Suppress progress output
  --no-color    Disable colored output
  -v, --verbose Increase log verbosity (-v, -vv)
  --version     Show version and exit

Examples:
  cie init                           Create configuration interactively
  cie index                          Index current repository
  cie index --full                   Force full re-index
  cie status                         Show project status
  cie status --json                  Output as JSON
  cie ask "how does indexing work?"
  cie ask --json "where is X defined?"

Data Storage:
  Data is stored locally in ~/.cie/data/<project_id>/

Environment Variables:
  OLLAMA_BASE_URL    Ollama URL (default: http://localhost:11434)
  OLLAMA_EMBED_MODEL Embedding model (default: nomic-embed-text)

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("cie version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	globals := GlobalFlags{Quiet: *quiet, NoColor: *noColor, Verbose: *verbose}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs)
	case "index":
		runIndex(cmdArgs, *configPath, globals)
	case "status":
		runStatus(cmdArgs, *configPath)
	case "ask":
		runAsk(cmdArgs, *configPath)
	case "reset":
		runReset(cmdArgs, *configPath)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
