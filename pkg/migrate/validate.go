package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

const (
	annotationUp        = "-- +goose Up"
	annotationDown      = "-- +goose Down"
	annotationStmtBegin = "-- +goose StatementBegin"
	annotationStmtEnd   = "-- +goose StatementEnd"
)

// ValidateDir checks every .sql file in dir for a versioned filename, a unique
// version, and well-formed goose annotations. All problems are reported together.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	var errs error
	seen := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name))
			continue
		}
		if prev, ok := seen[m[1]]; ok {
			errs = multierr.Append(errs, fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name))
		}
		seen[m[1]] = name

		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("read file %q: %w", name, err))
			continue
		}
		errs = multierr.Append(errs, validateAnnotations(name, string(b)))
	}
	return errs
}

func validateAnnotations(name, txt string) error {
	up := strings.Index(txt, annotationUp)
	down := strings.Index(txt, annotationDown)
	switch {
	case up < 0:
		return fmt.Errorf("migration %q missing %q", name, annotationUp)
	case down < 0:
		return fmt.Errorf("migration %q missing %q", name, annotationDown)
	case down < up:
		return fmt.Errorf("migration %q has Down section before Up", name)
	}

	depth := 0
	for _, line := range strings.Split(txt, "\n") {
		switch strings.TrimSpace(line) {
		case annotationStmtBegin:
			if depth > 0 {
				return fmt.Errorf("migration %q has nested StatementBegin", name)
			}
			depth++
		case annotationStmtEnd:
			if depth == 0 {
				return fmt.Errorf("migration %q has StatementEnd without StatementBegin", name)
			}
			depth--
		}
	}
	if depth != 0 {
		return fmt.Errorf("migration %q has unterminated StatementBegin", name)
	}
	return nil
}
