// Package storage keeps intervention documents on the local filesystem.
package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/edupredict/risk-monitor/internal/domain/intervention"
	"github.com/edupredict/risk-monitor/internal/domain/shared"
)

// sniffLen is how many leading bytes are used for content type detection.
const sniffLen = 3072

var (
	// ErrDocumentTooLarge is returned when an upload exceeds the size limit.
	ErrDocumentTooLarge = shared.NewDomainError("intervention", "SaveDocument", shared.ErrInvalidInput, "document exceeds the upload size limit")

	extPattern    = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)
	handlePattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}(\.[a-z0-9]{1,10})?$`)
)

// DiskStore implements intervention.DocumentStore on a directory. Handles
// are a random UUID plus the sanitized extension of the uploaded name; the
// original file name is never used on disk.
type DiskStore struct {
	dir     string
	maxSize int64
}

var _ intervention.DocumentStore = (*DiskStore)(nil)

// NewDiskStore creates dir if needed. maxSize <= 0 disables the limit.
func NewDiskStore(dir string, maxSize int64) (*DiskStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage: upload directory is empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &DiskStore{dir: dir, maxSize: maxSize}, nil
}

// MaxSize returns the configured upload limit in bytes.
func (s *DiskStore) MaxSize() int64 { return s.maxSize }

// Save writes r to a new file. A partially written file is removed on error.
func (s *DiskStore) Save(ctx context.Context, originalName string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}

	ext := SanitizeExtension(originalName)
	if ext == "" {
		ext = SanitizeExtension("x" + mimetype.Detect(head).Extension())
	}
	handle := uuid.NewString() + ext

	path := filepath.Join(s.dir, handle)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("failed to create document: %w", err)
	}

	var src io.Reader = br
	if s.maxSize > 0 {
		src = io.LimitReader(br, s.maxSize+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.maxSize > 0 && n > s.maxSize {
		err = ErrDocumentTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		if errors.Is(err, ErrDocumentTooLarge) {
			return "", err
		}
		return "", fmt.Errorf("failed to write document: %w", err)
	}
	return handle, nil
}

// Open returns the stored file and its detected content type.
func (s *DiskStore) Open(ctx context.Context, handle string) (io.ReadCloser, intervention.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, intervention.Document{}, err
	}
	if !ValidHandle(handle) {
		return nil, intervention.Document{}, shared.ErrDocumentNotFound.WithMessage("document not found: " + handle)
	}

	f, err := os.Open(filepath.Join(s.dir, handle))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, intervention.Document{}, shared.ErrDocumentNotFound.WithMessage("document not found: " + handle)
		}
		return nil, intervention.Document{}, fmt.Errorf("failed to open document: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, intervention.Document{}, fmt.Errorf("failed to stat document: %w", err)
	}

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		_ = f.Close()
		return nil, intervention.Document{}, fmt.Errorf("failed to detect document type: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, intervention.Document{}, fmt.Errorf("failed to rewind document: %w", err)
	}

	return f, intervention.Document{
		Handle:      handle,
		ContentType: mtype.String(),
		Size:        info.Size(),
	}, nil
}

// Delete removes a stored document. Deleting a missing handle is not an error.
func (s *DiskStore) Delete(ctx context.Context, handle string) error {
	if !ValidHandle(handle) {
		return shared.ErrDocumentNotFound.WithMessage("document not found: " + handle)
	}
	err := os.Remove(filepath.Join(s.dir, handle))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// SanitizeExtension returns the lower-cased extension of name when it is a
// short alphanumeric suffix, otherwise "".
func SanitizeExtension(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := strings.ToLower(filepath.Ext(base))
	if !extPattern.MatchString(ext) {
		return ""
	}
	return ext
}

// ValidHandle reports whether handle has the shape Save produces. Anything
// else, including path traversal attempts, is rejected.
func ValidHandle(handle string) bool {
	return handlePattern.MatchString(handle)
}
