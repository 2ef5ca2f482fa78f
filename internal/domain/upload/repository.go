package upload

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Repository is the catalog. Every call names the table it works on.
type Repository interface {
	Create(ctx context.Context, table string, f *StoredFile) error
	GetByID(ctx context.Context, table, id string) (*StoredFile, error)
	List(ctx context.Context, table string, filter ListFilter) ([]*StoredFile, error)
	UpdateMetadata(ctx context.Context, table, id string, fields map[string]any) error
	Delete(ctx context.Context, table, id string) error
	Stats(ctx context.Context, table string) (*TableStats, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, table string, f *StoredFile) error {
	err := r.db.WithContext(ctx).Table(table).Create(f).Error
	if err != nil && isUniqueViolation(err) {
		return ErrPathConflict
	}
	if err == nil {
		f.Table = table
	}
	return err
}

func (r *repository) GetByID(ctx context.Context, table, id string) (*StoredFile, error) {
	var f StoredFile
	err := r.db.WithContext(ctx).Table(table).Where("id = ?", id).Take(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	f.Table = table
	return &f, nil
}

func (r *repository) List(ctx context.Context, table string, filter ListFilter) ([]*StoredFile, error) {
	q := r.db.WithContext(ctx).Table(table).Order("created_at DESC, id DESC")
	if filter.Folder != "" {
		q = q.Where("folder = ?", filter.Folder)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	files := make([]*StoredFile, 0)
	if err := q.Find(&files).Error; err != nil {
		return nil, err
	}
	for _, f := range files {
		f.Table = table
	}
	return files, nil
}

// UpdateMetadata changes display columns only. Callers pass column names.
func (r *repository) UpdateMetadata(ctx context.Context, table, id string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).Table(table).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, table, id string) error {
	res := r.db.WithContext(ctx).Table(table).Where("id = ?", id).Delete(&StoredFile{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Stats(ctx context.Context, table string) (*TableStats, error) {
	st := &TableStats{}
	err := r.db.WithContext(ctx).Table(table).
		Select("COUNT(*) AS files, COALESCE(SUM(size), 0) AS bytes").
		Scan(st).Error
	if err != nil {
		return nil, err
	}
	st.Table = table
	return st, nil
}

// isUniqueViolation recognises duplicate keys from either backend.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
