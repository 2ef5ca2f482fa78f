package upload

import (
	"context"
	"fmt"
	"sort"
)

// MissingFile is a catalog row whose file is not on disk.
type MissingFile struct {
	Table string `json:"table"`
	ID    string `json:"id"`
	Path  string `json:"path"`
}

// AuditReport lists orphans in both directions. It is informational only.
type AuditReport struct {
	Rows           int           `json:"rows"`
	Files          int           `json:"files"`
	MissingFiles   []MissingFile `json:"missingFiles"`
	UntrackedFiles []string      `json:"untrackedFiles"`
}

func (r *AuditReport) Clean() bool {
	return len(r.MissingFiles) == 0 && len(r.UntrackedFiles) == 0
}

// Audit compares every catalog table with the storage tree. It never
// modifies either side.
func (s *Service) Audit(ctx context.Context) (*AuditReport, error) {
	report := &AuditReport{
		MissingFiles:   []MissingFile{},
		UntrackedFiles: []string{},
	}
	tracked := make(map[string]bool)

	for _, table := range KnownTables {
		rows, err := s.repo.List(ctx, table, ListFilter{})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", table, err)
		}
		for _, row := range rows {
			report.Rows++
			tracked[row.Path] = true

			ok, err := s.store.Exists(row.Path)
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", row.Path, err)
			}
			if !ok {
				report.MissingFiles = append(report.MissingFiles, MissingFile{Table: table, ID: row.ID, Path: row.Path})
			}
		}
	}

	err := s.store.Walk(func(relPath string) error {
		report.Files++
		if !tracked[relPath] {
			report.UntrackedFiles = append(report.UntrackedFiles, relPath)
		}
		return ctx.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("walk storage: %w", err)
	}

	sort.Strings(report.UntrackedFiles)
	return report, nil
}
