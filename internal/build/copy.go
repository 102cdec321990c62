package build

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/conneroisu/sitepipe/internal/config"
	errs "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
)

// Copier copies files matching a glob into a destination verbatim. It backs
// the img and fonts stages.
type Copier struct {
	StageName string
	Entry     config.PathEntry
	Logger    logging.Logger
}

// NewCopier creates a copy stage for one path table entry.
func NewCopier(name string, entry config.PathEntry, logger logging.Logger) *Copier {
	return &Copier{StageName: name, Entry: entry, Logger: logger.WithComponent(name)}
}

// Name implements Stage.
func (c *Copier) Name() string { return c.StageName }

// Run copies every matching file, keeping its path relative to the glob base.
func (c *Copier) Run(ctx context.Context) error {
	files, err := config.Expand(c.Entry.Src)
	if err != nil {
		return errs.Fatal(c.StageName, fmt.Errorf("failed to expand %s: %w", c.Entry.Src, err))
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return errs.Fatal(c.StageName, err)
		}

		rel, err := config.Rel(c.Entry.Src, file)
		if err != nil {
			return errs.Fatal(c.StageName, err)
		}
		dst := filepath.Join(c.Entry.Dest, rel)

		if err := copyFile(file, dst); err != nil {
			return errs.Fatal(c.StageName, fmt.Errorf("failed to copy %s to %s: %w", file, dst, err))
		}
	}

	c.Logger.Info(ctx, "Copied files", "count", len(files), "dest", c.Entry.Dest)
	return nil
}
