package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Glob helpers shared by the stages and the watcher. Patterns use forward
// slashes and support ** for any number of directories.

// Normalize cleans a path or pattern into slash form without a leading "./".
func Normalize(p string) string {
	return filepath.ToSlash(filepath.Clean(filepath.FromSlash(p)))
}

// ValidPattern reports whether pattern is a well-formed glob.
func ValidPattern(pattern string) bool {
	return doublestar.ValidatePattern(Normalize(pattern))
}

// Base returns the static directory prefix of pattern, the part before the
// first path segment containing a glob meta character.
func Base(pattern string) string {
	base, _ := doublestar.SplitPattern(Normalize(pattern))
	return filepath.FromSlash(base)
}

// Match reports whether name matches pattern. A relative pattern matched
// against an absolute name is resolved against the working directory first.
func Match(pattern, name string) bool {
	if filepath.IsAbs(name) && !filepath.IsAbs(filepath.FromSlash(pattern)) {
		if cwd, err := os.Getwd(); err == nil {
			if rel, err := filepath.Rel(cwd, name); err == nil && !strings.HasPrefix(rel, "..") {
				name = rel
			}
		}
	}
	ok, err := doublestar.Match(Normalize(pattern), Normalize(name))
	return err == nil && ok
}

// Expand returns the files matching pattern in lexical order. A pattern whose
// base directory does not exist expands to nothing.
func Expand(pattern string) ([]string, error) {
	matches, err := doublestar.FilepathGlob(filepath.FromSlash(Normalize(pattern)), doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// Rel returns file relative to the static base of pattern.
func Rel(pattern, file string) (string, error) {
	return filepath.Rel(Base(pattern), filepath.Clean(file))
}
