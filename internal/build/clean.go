package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	errs "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
)

// Cleaner deletes the output tree before a fresh build.
type Cleaner struct {
	Root   string
	Logger logging.Logger
}

// NewCleaner creates a cleaner for the output root.
func NewCleaner(root string, logger logging.Logger) *Cleaner {
	return &Cleaner{Root: root, Logger: logger.WithComponent(StageClean)}
}

// Name implements Stage.
func (c *Cleaner) Name() string { return StageClean }

// Run removes the output root. A missing root is not an error.
func (c *Cleaner) Run(ctx context.Context) error {
	if err := c.guard(); err != nil {
		return errs.Fatal(StageClean, err)
	}

	if err := os.RemoveAll(c.Root); err != nil {
		return errs.Fatal(StageClean, fmt.Errorf("failed to remove %s: %w", c.Root, err))
	}

	c.Logger.Debug(ctx, "Removed output directory", "root", c.Root)
	return nil
}

// guard refuses to delete the filesystem root, the working directory or any
// of its ancestors.
func (c *Cleaner) guard() error {
	abs, err := filepath.Abs(c.Root)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", c.Root, err)
	}
	if abs == filepath.Dir(abs) {
		return fmt.Errorf("refusing to remove filesystem root %s", abs)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	rel, err := filepath.Rel(abs, cwd)
	if err == nil && !startsWithParent(rel) {
		return fmt.Errorf("refusing to remove %s: it contains the working directory", abs)
	}
	return nil
}

func startsWithParent(rel string) bool {
	return len(rel) >= 2 && rel[:2] == ".." && (len(rel) == 2 || rel[2] == filepath.Separator)
}
