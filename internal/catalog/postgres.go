package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/hbomb79/Trove/internal/database"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

type PostgresStore struct {
	db database.Queryable
}

func NewPostgresStore(db database.Queryable) *PostgresStore {
	return &PostgresStore{db: db}
}

func (store *PostgresStore) GetFile(ctx context.Context, id uuid.UUID) (*File, error) {
	return store.getWhere(ctx, squirrel.Eq{"id": id})
}

func (store *PostgresStore) FindFileBySourceURL(ctx context.Context, url string) (*File, error) {
	return store.getWhere(ctx, squirrel.Eq{"source_url": url})
}

func (store *PostgresStore) FindFileBySourcePath(ctx context.Context, path string) (*File, error) {
	return store.getWhere(ctx, squirrel.Eq{"source_path": path})
}

func (store *PostgresStore) getWhere(ctx context.Context, pred squirrel.Sqlizer) (*File, error) {
	query, args, err := psql.Select("*").From("file").Where(pred).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct select file query: %w", err)
	}

	var file File
	if err := store.db.GetContext(ctx, &file, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFileNotFound
		}

		return nil, fmt.Errorf("failed to select file: %w", err)
	}

	return &file, nil
}

func (store *PostgresStore) CreateFile(ctx context.Context, file *File) error {
	_, err := store.db.ExecContext(ctx, `
		INSERT INTO file(id, source_url, source_path, path, filename, extension, mime_type, size, downloaded, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, current_timestamp, current_timestamp)
	`, file.ID, file.SourceURL, file.SourcePath, file.Path, file.Filename, file.Extension, file.MimeType, file.Size, file.Downloaded)
	if err != nil {
		return fmt.Errorf("failed to insert file %s: %w", file.ID, err)
	}

	return nil
}

func (store *PostgresStore) MarkDownloaded(ctx context.Context, id uuid.UUID, path string, size int64, at time.Time) error {
	return store.exec(ctx, id, psql.Update("file").SetMap(map[string]any{
		"path":           path,
		"size":           size,
		"downloaded":     true,
		"downloaded_at":  at,
		"download_error": nil,
	}))
}

func (store *PostgresStore) RecordDownloadError(ctx context.Context, id uuid.UUID, cause string) error {
	return store.exec(ctx, id, psql.Update("file").Set("download_error", cause))
}

func (store *PostgresStore) SetClassification(ctx context.Context, id uuid.UUID, c Classification) error {
	var family *string
	if c.Family != "" {
		family = &c.Family
	}

	return store.exec(ctx, id, psql.Update("file").
		Set("filename", squirrel.Expr("COALESCE(NULLIF(filename, ''), ?)", c.Filename)).
		Set("extension", squirrel.Expr("COALESCE(NULLIF(extension, ''), ?)", c.Extension)).
		Set("mime_type", squirrel.Expr("COALESCE(NULLIF(mime_type, ''), ?)", c.MimeType)).
		Set("family", squirrel.Expr("COALESCE(family, ?)", family)))
}

func (store *PostgresStore) SetMediaInfo(ctx context.Context, id uuid.UUID, info MediaInfo) error {
	return store.exec(ctx, id, psql.Update("file").
		Set("width", squirrel.Expr("COALESCE(?, width)", info.Width)).
		Set("height", squirrel.Expr("COALESCE(?, height)", info.Height)).
		Set("duration_seconds", squirrel.Expr("COALESCE(?, duration_seconds)", info.DurationSeconds)).
		Set("codec", squirrel.Expr("COALESCE(?, codec)", info.Codec)).
		Set("thumbnail_path", squirrel.Expr("COALESCE(?, thumbnail_path)", info.ThumbnailPath)))
}

func (store *PostgresStore) MarkMetadataExtracted(ctx context.Context, id uuid.UUID) error {
	return store.exec(ctx, id, psql.Update("file").Set("metadata_extracted", true))
}

// exec runs the update against the file with the given ID, returning
// ErrFileNotFound if no such file exists.
func (store *PostgresStore) exec(ctx context.Context, id uuid.UUID, builder squirrel.UpdateBuilder) error {
	query, args, err := builder.Set("updated_at", squirrel.Expr("current_timestamp")).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to construct update file query: %w", err)
	}

	res, err := store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update file %s: %w", id, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrFileNotFound
	}

	return nil
}

// FirstOrCreateArtist inserts the artist unless one with the same normalized
// name exists. The no-op DO UPDATE ensures the existing row is returned.
func (store *PostgresStore) FirstOrCreateArtist(ctx context.Context, name string) (*Artist, error) {
	key := NormalizeName(name)
	if key == "" {
		return nil, fmt.Errorf("artist name %q is empty once normalized", name)
	}

	var artist Artist
	err := store.db.GetContext(ctx, &artist, `
		INSERT INTO artist(id, name, normalized_name, created_at)
		VALUES ($1, $2, $3, current_timestamp)
		ON CONFLICT(normalized_name) DO UPDATE SET normalized_name = EXCLUDED.normalized_name
		RETURNING *
	`, uuid.New(), name, key)
	if err != nil {
		return nil, fmt.Errorf("failed to first-or-create artist %q: %w", name, err)
	}

	return &artist, nil
}

func (store *PostgresStore) FirstOrCreateAlbum(ctx context.Context, title string, artistID *uuid.UUID, year *int) (*Album, error) {
	key := NormalizeName(title)
	if key == "" {
		return nil, fmt.Errorf("album title %q is empty once normalized", title)
	}

	var album Album
	err := store.db.GetContext(ctx, &album, `
		INSERT INTO album(id, title, normalized_name, artist_id, year, created_at)
		VALUES ($1, $2, $3, $4, $5, current_timestamp)
		ON CONFLICT(normalized_name) DO UPDATE SET normalized_name = EXCLUDED.normalized_name
		RETURNING *
	`, uuid.New(), title, key, artistID, year)
	if err != nil {
		return nil, fmt.Errorf("failed to first-or-create album %q: %w", title, err)
	}

	return &album, nil
}

func (store *PostgresStore) AssociateArtist(ctx context.Context, association FileArtist) error {
	_, err := store.db.ExecContext(ctx, `
		INSERT INTO file_artist(file_id, artist_id, album_id, title, genre, track)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT(file_id, artist_id) DO NOTHING
	`, association.FileID, association.ArtistID, association.AlbumID, association.Title, association.Genre, association.Track)
	if err != nil {
		return fmt.Errorf("failed to associate artist %s with file %s: %w", association.ArtistID, association.FileID, err)
	}

	return nil
}
