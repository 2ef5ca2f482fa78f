package upload

import (
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Folders inferred from MIME types.
const (
	FolderImages    = "images"
	FolderVideos    = "videos"
	FolderDocuments = "documents"
	FolderFiles     = "files"
)

var folderPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Target is where an incoming file will be written.
type Target struct {
	Folder string
	Name   string
	Path   string // folder/name, relative to the storage root
	Dir    string // absolute directory
}

// Placement decides the folder and filename of an incoming file and makes
// sure the destination directory exists.
type Placement struct {
	store   *DiskStore
	allowed map[string]bool
	now     func() time.Time
}

// NewPlacement builds a resolver. An empty allow-list accepts any valid folder name.
func NewPlacement(store *DiskStore, allowedFolders []string) *Placement {
	var allowed map[string]bool
	if len(allowedFolders) > 0 {
		allowed = make(map[string]bool, len(allowedFolders))
		for _, f := range allowedFolders {
			allowed[strings.ToLower(strings.TrimSpace(f))] = true
		}
	}
	return &Placement{store: store, allowed: allowed, now: time.Now}
}

// ResolveFolder applies the placement policy: an explicit folder from the
// caller always wins, MIME inference is only the fallback.
func (p *Placement) ResolveFolder(explicit, mimeType string) (string, error) {
	folder := strings.ToLower(strings.TrimSpace(explicit))
	if folder == "" {
		folder = InferFolder(mimeType)
	}
	if !folderPattern.MatchString(folder) {
		return "", ErrInvalidFolder
	}
	if p.allowed != nil && !p.allowed[folder] {
		return "", ErrFolderNotAllowed
	}
	return folder, nil
}

// InferFolder maps a MIME type to its default folder.
func InferFolder(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return FolderImages
	case strings.HasPrefix(mimeType, "video/"):
		return FolderVideos
	case strings.HasPrefix(mimeType, "application/"), strings.HasPrefix(mimeType, "text/"):
		return FolderDocuments
	default:
		return FolderFiles
	}
}

// Place creates the folder directory and picks a collision-resistant name.
func (p *Placement) Place(folder, originalName, mimeType string) (*Target, error) {
	dir, err := p.store.EnsureDir(folder)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlacement, err)
	}

	name := p.GenerateName(originalName, mimeType)
	return &Target{
		Folder: folder,
		Name:   name,
		Path:   path.Join(folder, name),
		Dir:    dir,
	}, nil
}

// GenerateName returns "<unix millis>-<8 hex>-<sanitized base><ext>". The
// client's filename only contributes sanitized characters.
func (p *Placement) GenerateName(originalName, mimeType string) string {
	base, ext := splitName(originalName)
	if ext == "" {
		ext = extensionFor(mimeType)
	}
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%d-%s-%s%s", p.now().UnixMilli(), nonce, sanitizeName(base), ext)
}

func splitName(name string) (base, ext string) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" {
		name = ""
	}
	ext = sanitizeExt(filepath.Ext(name))
	return strings.TrimSuffix(name, filepath.Ext(name)), ext
}

func sanitizeName(name string) string {
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return '_'
	}, name)
	if len(name) > 40 {
		name = name[:40]
	}
	if strings.Trim(name, "_") == "" {
		return "file"
	}
	return name
}

func sanitizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	var b strings.Builder
	for _, r := range ext {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" {
		return ""
	}
	if len(out) > 10 {
		out = out[:10]
	}
	return "." + out
}

func extensionFor(mimeType string) string {
	if m := mimetype.Lookup(mimeType); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	return ".bin"
}

// normalizeMIME lower-cases a media type and drops its parameters.
func normalizeMIME(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(v); err == nil {
		return mt
	}
	mt, _, _ := strings.Cut(strings.ToLower(v), ";")
	return strings.TrimSpace(mt)
}
