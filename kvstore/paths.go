package kvstore

import (
	"os"
	"path/filepath"
)

// Layout names the files in a store base directory: the KV
// engine's own file, the membership filter snapshot, and config.toml.
type Layout struct {
	BaseDir string
}

func NewLayout(baseDir string) Layout { return Layout{BaseDir: baseDir} }

func (l Layout) DBFile() string { return filepath.Join(l.BaseDir, "seqdag.db") }

func (l Layout) FilterSnapshotPath() string { return filepath.Join(l.BaseDir, "filter.snapshot") }

func (l Layout) ConfigPath() string { return filepath.Join(l.BaseDir, "config.toml") }

func (l Layout) EnsureDirs() error {
	return os.MkdirAll(l.BaseDir, 0o750)
}
