package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a Store held entirely in-process, used when Trove is
// configured without a database.
type MemoryStore struct {
	mutex       sync.RWMutex
	files       map[uuid.UUID]*File
	artists     map[string]*Artist
	albums      map[string]*Album
	fileArtists map[uuid.UUID][]FileArtist
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files:       make(map[uuid.UUID]*File),
		artists:     make(map[string]*Artist),
		albums:      make(map[string]*Album),
		fileArtists: make(map[uuid.UUID][]FileArtist),
	}
}

func (store *MemoryStore) GetFile(_ context.Context, id uuid.UUID) (*File, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	if f, ok := store.files[id]; ok {
		clone := *f
		return &clone, nil
	}

	return nil, ErrFileNotFound
}

func (store *MemoryStore) FindFileBySourceURL(_ context.Context, url string) (*File, error) {
	return store.find(func(f *File) bool { return f.SourceURL != nil && *f.SourceURL == url })
}

func (store *MemoryStore) FindFileBySourcePath(_ context.Context, path string) (*File, error) {
	return store.find(func(f *File) bool { return f.SourcePath != nil && *f.SourcePath == path })
}

func (store *MemoryStore) find(pred func(*File) bool) (*File, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	for _, f := range store.files {
		if pred(f) {
			clone := *f
			return &clone, nil
		}
	}

	return nil, ErrFileNotFound
}

func (store *MemoryStore) CreateFile(_ context.Context, file *File) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if _, ok := store.files[file.ID]; ok {
		return fmt.Errorf("file %s already exists", file.ID)
	}

	for _, existing := range store.files {
		if file.SourceURL != nil && existing.SourceURL != nil && *existing.SourceURL == *file.SourceURL {
			return fmt.Errorf("file with source URL %s already exists", *file.SourceURL)
		}
		if file.SourcePath != nil && existing.SourcePath != nil && *existing.SourcePath == *file.SourcePath {
			return fmt.Errorf("file with source path %s already exists", *file.SourcePath)
		}
	}

	clone := *file
	store.files[file.ID] = &clone
	return nil
}

func (store *MemoryStore) MarkDownloaded(_ context.Context, id uuid.UUID, path string, size int64, at time.Time) error {
	return store.update(id, func(f *File) {
		f.Path = &path
		f.Size = size
		f.Downloaded = true
		f.DownloadedAt = &at
		f.DownloadError = nil
	})
}

func (store *MemoryStore) RecordDownloadError(_ context.Context, id uuid.UUID, cause string) error {
	return store.update(id, func(f *File) { f.DownloadError = &cause })
}

func (store *MemoryStore) SetClassification(_ context.Context, id uuid.UUID, c Classification) error {
	return store.update(id, func(f *File) {
		if f.Filename == "" {
			f.Filename = c.Filename
		}
		if f.Extension == "" {
			f.Extension = c.Extension
		}
		if f.MimeType == "" {
			f.MimeType = c.MimeType
		}
		if f.Family == nil && c.Family != "" {
			family := c.Family
			f.Family = &family
		}
	})
}

func (store *MemoryStore) SetMediaInfo(_ context.Context, id uuid.UUID, info MediaInfo) error {
	return store.update(id, func(f *File) {
		if info.Width != nil {
			f.Width = info.Width
		}
		if info.Height != nil {
			f.Height = info.Height
		}
		if info.DurationSeconds != nil {
			f.DurationSeconds = info.DurationSeconds
		}
		if info.Codec != nil {
			f.Codec = info.Codec
		}
		if info.ThumbnailPath != nil {
			f.ThumbnailPath = info.ThumbnailPath
		}
	})
}

func (store *MemoryStore) MarkMetadataExtracted(_ context.Context, id uuid.UUID) error {
	return store.update(id, func(f *File) { f.MetadataExtracted = true })
}

func (store *MemoryStore) update(id uuid.UUID, f func(*File)) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	file, ok := store.files[id]
	if !ok {
		return ErrFileNotFound
	}

	f(file)
	file.UpdatedAt = time.Now()
	return nil
}

func (store *MemoryStore) FirstOrCreateArtist(_ context.Context, name string) (*Artist, error) {
	key := NormalizeName(name)
	if key == "" {
		return nil, fmt.Errorf("artist name %q is empty once normalized", name)
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()

	artist, ok := store.artists[key]
	if !ok {
		artist = &Artist{ID: uuid.New(), Name: name, NormalizedName: key, CreatedAt: time.Now()}
		store.artists[key] = artist
	}

	clone := *artist
	return &clone, nil
}

func (store *MemoryStore) FirstOrCreateAlbum(_ context.Context, title string, artistID *uuid.UUID, year *int) (*Album, error) {
	key := NormalizeName(title)
	if key == "" {
		return nil, fmt.Errorf("album title %q is empty once normalized", title)
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()

	album, ok := store.albums[key]
	if !ok {
		album = &Album{ID: uuid.New(), Title: title, NormalizedName: key, ArtistID: artistID, Year: year, CreatedAt: time.Now()}
		store.albums[key] = album
	}

	clone := *album
	return &clone, nil
}

func (store *MemoryStore) AssociateArtist(_ context.Context, association FileArtist) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	existing := store.fileArtists[association.FileID]
	for _, a := range existing {
		if a.ArtistID == association.ArtistID {
			return nil
		}
	}

	store.fileArtists[association.FileID] = append(existing, association)
	return nil
}

// ArtistsForFile returns the artist associations recorded for the file.
func (store *MemoryStore) ArtistsForFile(id uuid.UUID) []FileArtist {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	return append([]FileArtist(nil), store.fileArtists[id]...)
}
