// Package mindsage is a single-process personal knowledge engine:
// hierarchical ingestion, hybrid keyword+semantic retrieval, and
// capacity-aware consolidation, sized to run unattended on edge
// hardware from a Raspberry Pi up through a small workstation.
package mindsage

import (
	"os"
	"path/filepath"

	"mindsage/tier"
)

// Config configures an Engine: a data directory, a capability tier (or
// an instruction to auto-detect one), and the embedder model's
// directory. Provider configuration, CLI flags, and environment loading
// are an external collaborator's concern, not the core's.
type Config struct {
	// DBPath is the full path to the SQLite database file. If empty,
	// falls back to DBName+DataDir, then a home-directory default.
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName names the database file when DBPath is empty. Defaults to
	// "mindsage" (the file becomes "<DBName>.db").
	DBName string `json:"db_name" yaml:"db_name"`

	// DataDir controls where the database is created when DBPath is
	// not set. Empty uses the user's home directory
	// (~/.mindsage/<DBName>.db).
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Tier is the capability tier driving retrieval strategy and
	// consolidation thresholds. Ignored when AutoDetectTier is true.
	Tier tier.Tier `json:"tier" yaml:"tier"`

	// AutoDetectTier derives Tier from the host's hardware envelope
	// (RAM, core count, GPU presence) at construction time instead of
	// using the Tier field directly.
	AutoDetectTier bool `json:"auto_detect_tier" yaml:"auto_detect_tier"`

	// EmbedderModelDir must contain model.onnx and tokenizer.json for
	// the neural embedder. Empty runs the no-op embedder, degrading
	// every search to BM25-only.
	EmbedderModelDir string `json:"embedder_model_dir" yaml:"embedder_model_dir"`

	// EmbedderOrtLibPath is onnxruntime's shared library path. Empty
	// uses the system default search path.
	EmbedderOrtLibPath string `json:"embedder_ort_lib_path" yaml:"embedder_ort_lib_path"`

	// QueueCapacity bounds the background indexing queue. 0 uses
	// defaultQueueCapacity.
	QueueCapacity int `json:"queue_capacity" yaml:"queue_capacity"`

	// MaxIngestBytes rejects Ingest calls for text larger than this
	// many bytes with ErrInputTooLarge. 0 uses defaultMaxIngestBytes.
	MaxIngestBytes int `json:"max_ingest_bytes" yaml:"max_ingest_bytes"`
}

// DefaultConfig returns a Config with sensible defaults: the database
// lives in ~/.mindsage/mindsage.db, the capability tier is
// auto-detected, and no neural embedder is configured (search runs
// BM25-only until EmbedderModelDir is set).
func DefaultConfig() Config {
	return Config{
		DBName:         "mindsage",
		AutoDetectTier: true,
	}
}

// resolveDBPath computes the final database path from config fields:
// DBPath, then DBName+DataDir, then a ~/.mindsage/ default.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "mindsage"
	}

	if c.DataDir != "" {
		return filepath.Join(c.DataDir, name+".db")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return name + ".db"
	}
	return filepath.Join(home, ".mindsage", name+".db")
}
