package render

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// Staging collects a run's output files in a hidden directory inside the
// output directory and moves them into place together on Commit, so a
// failed run leaves the previous outputs untouched.
type Staging struct {
	dir   string
	final string
	names []string
}

// NewStaging creates a staging directory under outputDir.
func NewStaging(outputDir string) (*Staging, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "render: create directory %s", outputDir)
	}
	dir, err := os.MkdirTemp(outputDir, ".staging-")
	if err != nil {
		return nil, eris.Wrap(err, "render: create staging directory")
	}
	return &Staging{dir: dir, final: outputDir}, nil
}

// Path returns the staged location of an output file and records it for
// Commit.
func (s *Staging) Path(name string) string {
	s.names = append(s.names, name)
	return filepath.Join(s.dir, name)
}

// Final returns the committed location of an output file.
func (s *Staging) Final(name string) string {
	return filepath.Join(s.final, name)
}

// Finals lists the committed locations of every recorded file, in the order
// they were staged.
func (s *Staging) Finals() []string {
	out := make([]string, len(s.names))
	for i, name := range s.names {
		out[i] = s.Final(name)
	}
	return out
}

// Commit renames every staged file into the output directory and removes the
// staging directory.
func (s *Staging) Commit() ([]string, error) {
	for _, name := range s.names {
		if err := os.Rename(filepath.Join(s.dir, name), s.Final(name)); err != nil {
			return nil, eris.Wrapf(err, "render: commit %s", name)
		}
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return nil, eris.Wrap(err, "render: remove staging directory")
	}
	return s.Finals(), nil
}

// Discard removes the staging directory and everything in it.
func (s *Staging) Discard() {
	_ = os.RemoveAll(s.dir)
}
