// Package catalog holds the minimal file record which Trove downloads
// and processes, along with the artist/album entities derived from
// audio metadata.
package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

var ErrFileNotFound = errors.New("file does not exist")

type (
	File struct {
		ID            uuid.UUID  `db:"id" json:"id"`
		SourceURL     *string    `db:"source_url" json:"sourceUrl,omitempty"`
		SourcePath    *string    `db:"source_path" json:"sourcePath,omitempty"`
		Path          *string    `db:"path" json:"path,omitempty"`
		Filename      string     `db:"filename" json:"filename"`
		Extension     string     `db:"extension" json:"extension"`
		MimeType      string     `db:"mime_type" json:"mimeType"`
		Size          int64      `db:"size" json:"size"`
		Downloaded    bool       `db:"downloaded" json:"downloaded"`
		DownloadedAt  *time.Time `db:"downloaded_at" json:"downloadedAt,omitempty"`
		DownloadError *string    `db:"download_error" json:"downloadError,omitempty"`
		Family        *string    `db:"family" json:"family,omitempty"`

		Width             *int     `db:"width" json:"width,omitempty"`
		Height            *int     `db:"height" json:"height,omitempty"`
		DurationSeconds   *float64 `db:"duration_seconds" json:"durationSeconds,omitempty"`
		Codec             *string  `db:"codec" json:"codec,omitempty"`
		ThumbnailPath     *string  `db:"thumbnail_path" json:"thumbnailPath,omitempty"`
		MetadataExtracted bool     `db:"metadata_extracted" json:"metadataExtracted"`

		CreatedAt time.Time `db:"created_at" json:"createdAt"`
		UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
	}

	// Classification is written to a file only where the existing
	// value is empty. The family is set at most once.
	Classification struct {
		Filename  string
		Extension string
		MimeType  string
		Family    string
	}

	// MediaInfo carries the fields discovered by a processor. Nil
	// fields are left untouched.
	MediaInfo struct {
		Width           *int
		Height          *int
		DurationSeconds *float64
		Codec           *string
		ThumbnailPath   *string
	}

	Artist struct {
		ID             uuid.UUID `db:"id" json:"id"`
		Name           string    `db:"name" json:"name"`
		NormalizedName string    `db:"normalized_name" json:"-"`
		CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	}

	Album struct {
		ID             uuid.UUID  `db:"id" json:"id"`
		Title          string     `db:"title" json:"title"`
		NormalizedName string     `db:"normalized_name" json:"-"`
		ArtistID       *uuid.UUID `db:"artist_id" json:"artistId,omitempty"`
		Year           *int       `db:"year" json:"year,omitempty"`
		CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	}

	FileArtist struct {
		FileID   uuid.UUID  `db:"file_id"`
		ArtistID uuid.UUID  `db:"artist_id"`
		AlbumID  *uuid.UUID `db:"album_id"`
		Title    *string    `db:"title"`
		Genre    *string    `db:"genre"`
		Track    *int       `db:"track"`
	}

	Store interface {
		GetFile(ctx context.Context, id uuid.UUID) (*File, error)
		FindFileBySourceURL(ctx context.Context, url string) (*File, error)
		FindFileBySourcePath(ctx context.Context, path string) (*File, error)
		CreateFile(ctx context.Context, file *File) error

		MarkDownloaded(ctx context.Context, id uuid.UUID, path string, size int64, at time.Time) error
		RecordDownloadError(ctx context.Context, id uuid.UUID, cause string) error
		SetClassification(ctx context.Context, id uuid.UUID, classification Classification) error
		SetMediaInfo(ctx context.Context, id uuid.UUID, info MediaInfo) error
		MarkMetadataExtracted(ctx context.Context, id uuid.UUID) error

		FirstOrCreateArtist(ctx context.Context, name string) (*Artist, error)
		FirstOrCreateAlbum(ctx context.Context, title string, artistID *uuid.UUID, year *int) (*Album, error)
		AssociateArtist(ctx context.Context, association FileArtist) error
	}
)

// NewFile returns a minimal file record with a fresh ID.
func NewFile() *File {
	now := time.Now()
	return &File{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}

// IsDownloaded reports whether the file has already been verified on disk.
func (f *File) IsDownloaded() bool {
	return f.Downloaded && f.Path != nil && *f.Path != ""
}

// LocalPath returns the on-disk location of the file: its downloaded
// path if present, else the path it was ingested from.
func (f *File) LocalPath() (string, bool) {
	if f.Path != nil && *f.Path != "" {
		return *f.Path, true
	}
	if f.SourcePath != nil && *f.SourcePath != "" {
		return *f.SourcePath, true
	}

	return "", false
}

// NormalizeName folds a name into the key used to deduplicate derived
// entities: NFKC normalized, lower-cased, with runs of whitespace collapsed.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(norm.NFKC.String(name))), " ")
}
