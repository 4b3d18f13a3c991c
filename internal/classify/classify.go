// Package classify sniffs the content of finalized files and fans each one
// out to exactly one processing job for its media family.
package classify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/hbomb79/Trove/internal/catalog"
	"github.com/hbomb79/Trove/internal/progress"
	"github.com/hbomb79/Trove/pkg/logger"
)

var (
	log = logger.Get("Classifier")

	ErrFileNotLocal = errors.New("file has no local content to classify")
)

type (
	Request struct {
		FileID    uuid.UUID
		SessionID string
	}

	// Job is a single unit of processing handed to the processors.
	Job struct {
		FileID    uuid.UUID
		SessionID string
		Family    Family
	}

	// Enqueuer accepts processing jobs. Enqueue must not block on the
	// processing of the job itself.
	Enqueuer interface {
		Enqueue(ctx context.Context, job Job) error
	}

	Classifier struct {
		files    catalog.Store
		progress progress.Store
		enqueuer Enqueuer
	}
)

func New(files catalog.Store, progress progress.Store, enqueuer Enqueuer) *Classifier {
	return &Classifier{files: files, progress: progress, enqueuer: enqueuer}
}

// Classify detects the MIME type of the file from its bytes, records the
// classification and, for supported families, counts the file in to the
// session before enqueueing one processing job for it. A file whose family
// was already resolved is not sniffed again.
func (classifier *Classifier) Classify(ctx context.Context, req Request) (Family, error) {
	file, err := classifier.files.GetFile(ctx, req.FileID)
	if err != nil {
		return Unsupported, err
	}

	localPath, ok := file.LocalPath()
	if !ok {
		return Unsupported, fmt.Errorf("%w: %s", ErrFileNotLocal, file.ID)
	}

	family, err := classifier.resolveFamily(ctx, file, localPath)
	if err != nil {
		return Unsupported, err
	}

	if !family.Supported() {
		log.Debugf("File %s (%s) is unsupported, no processing will occur\n", file.ID, localPath)
		return family, nil
	}

	// Total is counted before the job exists so that done never exceeds it.
	if err := classifier.progress.IncrementTotal(ctx, req.SessionID); err != nil {
		return family, fmt.Errorf("failed to count file %s in to session %s: %w", file.ID, req.SessionID, err)
	}
	if err := classifier.enqueuer.Enqueue(ctx, Job{FileID: file.ID, SessionID: req.SessionID, Family: family}); err != nil {
		return family, fmt.Errorf("failed to enqueue %s processing of %s: %w", family, file.ID, err)
	}

	log.Verbosef("Classified file %s as %s\n", file.ID, family)
	return family, nil
}

func (classifier *Classifier) resolveFamily(ctx context.Context, file *catalog.File, localPath string) (Family, error) {
	if file.Family != nil {
		if family, err := ParseFamily(*file.Family); err == nil {
			return family, nil
		}
	}

	mime, err := mimetype.DetectFile(localPath)
	if err != nil {
		return Unsupported, fmt.Errorf("failed to detect type of %s: %w", localPath, err)
	}

	family := FamilyOfMime(mime.String())
	filename := displayName(file, localPath)
	extension := strings.TrimPrefix(filepath.Ext(filename), ".")
	if extension == "" {
		extension = strings.TrimPrefix(mime.Extension(), ".")
	}

	classification := catalog.Classification{
		Filename:  filename,
		Extension: strings.ToLower(extension),
		MimeType:  mime.String(),
		Family:    family.String(),
	}
	if err := classifier.files.SetClassification(ctx, file.ID, classification); err != nil {
		return Unsupported, fmt.Errorf("failed to record classification of %s: %w", file.ID, err)
	}

	return family, nil
}

// displayName prefers the name the file had at its origin over the name
// it was stored under locally.
func displayName(file *catalog.File, localPath string) string {
	if file.SourceURL != nil {
		if u, err := url.Parse(*file.SourceURL); err == nil {
			if base := path.Base(u.Path); base != "/" && base != "." && base != "" {
				return base
			}
		}
	}

	return filepath.Base(localPath)
}
