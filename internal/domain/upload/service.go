package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// sniffLen is how much of the stream is inspected when the client did not
// declare a usable content type.
const sniffLen = 3072

// Incoming describes one staged upload handed over by the transport layer.
type Incoming struct {
	OriginalName string
	MimeType     string // declared by the client, may be empty
	Size         int64  // declared size of the part
	Folder       string // explicit folder hint, may be empty
	Content      io.Reader
}

// MetadataUpdate carries the editable display fields. Nil means unchanged.
type MetadataUpdate struct {
	TitleEn  *string `json:"titleEn" validate:"omitempty,max=200"`
	TitleAr  *string `json:"titleAr" validate:"omitempty,max=200"`
	Category *string `json:"category" validate:"omitempty,max=64"`
	Featured *bool   `json:"featured"`
}

func (m MetadataUpdate) columns() map[string]any {
	fields := make(map[string]any)
	if m.TitleEn != nil {
		fields["title_en"] = strings.TrimSpace(*m.TitleEn)
	}
	if m.TitleAr != nil {
		fields["title_ar"] = strings.TrimSpace(*m.TitleAr)
	}
	if m.Category != nil {
		fields["category"] = strings.TrimSpace(*m.Category)
	}
	if m.Featured != nil {
		fields["featured"] = *m.Featured
	}
	return fields
}

// Options configures a Service.
type Options struct {
	URLPrefix   string
	MaxFileSize int64
	Tables      TableSelector
}

// Service runs the upload pipeline: place on disk, then catalog. The two
// steps are not atomic; a failed catalog write leaves the file on disk and
// a failed unlink leaves nothing but a log line.
type Service struct {
	repo      Repository
	store     *DiskStore
	placement *Placement
	opts      Options
	log       *slog.Logger
	now       func() time.Time
}

func NewService(repo Repository, store *DiskStore, placement *Placement, opts Options, log *slog.Logger) *Service {
	opts.URLPrefix = strings.TrimRight(opts.URLPrefix, "/")
	return &Service{
		repo:      repo,
		store:     store,
		placement: placement,
		opts:      opts,
		log:       log,
		now:       time.Now,
	}
}

// Upload writes the file under its folder and inserts one catalog row.
func (s *Service) Upload(ctx context.Context, in Incoming) (*StoredFile, error) {
	if in.Content == nil {
		return nil, ErrNoFile
	}
	if in.Size == 0 {
		return nil, ErrEmptyFile
	}
	if in.Size > s.opts.MaxFileSize {
		return nil, ErrFileTooLarge
	}

	content := in.Content
	mimeType := normalizeMIME(in.MimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		var err error
		mimeType, content, err = sniff(content)
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}
	}

	folder, err := s.placement.ResolveFolder(in.Folder, mimeType)
	if err != nil {
		return nil, err
	}

	target, err := s.placement.Place(folder, in.OriginalName, mimeType)
	if err != nil {
		s.log.Error("placement failed", "folder", folder, "error", err)
		return nil, err
	}

	// The extra byte detects a stream longer than its declared size.
	written, err := s.store.Save(target.Path, io.LimitReader(content, s.opts.MaxFileSize+1))
	if err != nil {
		s.log.Error("disk write failed", "path", target.Path, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrPlacement, err)
	}
	if written > s.opts.MaxFileSize {
		_, _ = s.store.Remove(target.Path)
		return nil, ErrFileTooLarge
	}
	if written == 0 {
		_, _ = s.store.Remove(target.Path)
		return nil, ErrEmptyFile
	}

	now := s.now().UTC()
	table := s.opts.Tables.For(folder)
	row := &StoredFile{
		ID:           uuid.NewString(),
		Name:         target.Name,
		OriginalName: in.OriginalName,
		MimeType:     mimeType,
		Size:         written,
		Path:         target.Path,
		URL:          s.URL(target.Path),
		Folder:       folder,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, table, row); err != nil {
		s.log.Warn("orphaned file left on disk",
			"path", target.Path,
			"table", table,
			"error", err,
		)
		if errors.Is(err, ErrPathConflict) {
			return nil, ErrPathConflict
		}
		return nil, fmt.Errorf("%w: %v", ErrCatalogWrite, err)
	}

	s.log.Info("file cataloged",
		"id", row.ID,
		"table", table,
		"path", row.Path,
		"mime_type", row.MimeType,
		"size", row.Size,
	)
	return row, nil
}

// URL derives the public address of a stored path.
func (s *Service) URL(relPath string) string {
	return s.opts.URLPrefix + "/" + strings.TrimPrefix(relPath, "/")
}

func (s *Service) Get(ctx context.Context, table, id string) (*StoredFile, error) {
	if !isKnownTable(table) {
		return nil, ErrUnknownTable
	}
	return s.repo.GetByID(ctx, table, id)
}

func (s *Service) List(ctx context.Context, table string, filter ListFilter) ([]*StoredFile, error) {
	if !isKnownTable(table) {
		return nil, ErrUnknownTable
	}
	filter.Folder = strings.ToLower(strings.TrimSpace(filter.Folder))
	return s.repo.List(ctx, table, filter)
}

// UpdateMetadata edits display fields. Path, name and content never change.
func (s *Service) UpdateMetadata(ctx context.Context, table, id string, upd MetadataUpdate) (*StoredFile, error) {
	if !isKnownTable(table) {
		return nil, ErrUnknownTable
	}
	fields := upd.columns()
	if len(fields) == 0 {
		return nil, ErrNoChanges
	}
	if err := s.repo.UpdateMetadata(ctx, table, id, fields); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, table, id)
}

// Delete removes the file from disk, then the catalog row. A missing or
// undeletable file is logged and does not stop the row removal.
func (s *Service) Delete(ctx context.Context, table, id string) error {
	if !isKnownTable(table) {
		return ErrUnknownTable
	}

	row, err := s.repo.GetByID(ctx, table, id)
	if err != nil {
		return err
	}

	existed, err := s.store.Remove(row.Path)
	switch {
	case err != nil:
		s.log.Warn("orphaned disk state: unlink failed",
			"id", id,
			"table", table,
			"path", row.Path,
			"error", err,
		)
	case !existed:
		s.log.Warn("orphaned disk state: file already absent",
			"id", id,
			"table", table,
			"path", row.Path,
		)
	}

	if err := s.repo.Delete(ctx, table, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete catalog row: %w", err)
	}

	s.log.Info("file deleted", "id", id, "table", table, "path", row.Path)
	return nil
}

// Stats aggregates every catalog table.
func (s *Service) Stats(ctx context.Context) ([]*TableStats, error) {
	out := make([]*TableStats, 0, len(KnownTables))
	for _, table := range KnownTables {
		st, err := s.repo.Stats(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("stats for %s: %w", table, err)
		}
		out = append(out, st)
	}
	return out, nil
}

// sniff detects the content type from the head of r and returns a reader
// that still yields the full stream.
func sniff(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", nil, err
	}
	head = head[:n]
	mimeType := normalizeMIME(mimetype.Detect(head).String())
	return mimeType, io.MultiReader(bytes.NewReader(head), r), nil
}
