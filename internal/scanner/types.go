// Package scanner discovers Markdown files under a project root, hashes
// their content, and diffs the result against previously persisted state
// to produce the changed/deleted/all sets the indexing pipeline consumes.
package scanner

import (
	"time"

	"github.com/memexmcp/memex/internal/config"
)

// Options configures a scan.
type Options struct {
	// RootDir is the project root directory to scan.
	RootDir string

	// ForceFullRebuild treats every discovered file as changed, regardless
	// of its hash.
	ForceFullRebuild bool

	// ExcludeGlobs are user-configured glob patterns; a match means exclude.
	ExcludeGlobs []string

	// RespectGitignore enables .gitignore parsing.
	RespectGitignore bool

	// Workers bounds hashing concurrency (0 = runtime.NumCPU()).
	Workers int

	// Submodules configures git submodule discovery. If nil or Enabled is
	// false, submodules are not scanned.
	Submodules *config.SubmoduleConfig

	// IndexName is recorded into the persisted state file for operator
	// visibility; it does not affect scan behavior.
	IndexName string
}

// Result is the output of a scan: the changed, deleted, and complete file
// sets, plus the state snapshots needed to persist and to compare against
// next time.
type Result struct {
	Changed   []string
	Deleted   []string
	All       []string
	PrevState *State
	NewState  *State
}

// State is the persisted scan state: a normalized-relative-path -> sha256
// hex digest map, plus the timestamps of the last full and incremental
// scans.
type State struct {
	FileHashes              map[string]string `json:"fileHashes"`
	LastFullIndexUTC        *time.Time        `json:"lastFullIndexUtc"`
	LastIncrementalIndexUTC *time.Time        `json:"lastIncrementalIndexUtc"`
	IndexName               string            `json:"indexName,omitempty"`
}

func newState() *State {
	return &State{FileHashes: make(map[string]string)}
}

// personalPrefix is always excluded, independent of user configuration.
const personalPrefix = "personal/"

// stateFileName is the name of the persisted scan-state file, relative to
// the scanned root.
const stateFileName = ".memory-exchange-state.json"
