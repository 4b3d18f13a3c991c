package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dhowden/tag"
	"github.com/google/uuid"
	"github.com/hbomb79/Trove/internal/catalog"
)

type audioProcessor struct {
	files  catalog.Store
	prober Prober
}

// NewAudioProcessor returns the processor for audio files. The prober is
// optional; without it no duration or codec is recorded.
func NewAudioProcessor(files catalog.Store, prober Prober) *audioProcessor {
	return &audioProcessor{files: files, prober: prober}
}

func (processor *audioProcessor) AlreadyProcessed(_ context.Context, file *catalog.File) (bool, error) {
	return file.MetadataExtracted, nil
}

// Process reads the tags of the audio file and links the file to its
// artist and album, creating them on first sight.
func (processor *audioProcessor) Process(ctx context.Context, file *catalog.File) error {
	path, ok := file.LocalPath()
	if !ok {
		return fmt.Errorf("file %s has no local content", file.ID)
	}

	metadata, err := readTags(path)
	if err != nil {
		return err
	}

	info := catalog.MediaInfo{}
	if metadata != nil {
		info.Codec = nonEmpty(strings.ToLower(string(metadata.FileType())))
		if err := processor.linkArtist(ctx, file.ID, metadata); err != nil {
			return err
		}
	}

	if processor.prober != nil {
		if probe, err := processor.prober.Probe(ctx, path); err != nil {
			log.Warnf("Unable to probe audio file %s: %v\n", file.ID, err)
		} else {
			info.DurationSeconds = &probe.DurationSeconds
			info.Codec = nonEmpty(probe.Codec)
		}
	}

	if err := processor.files.SetMediaInfo(ctx, file.ID, info); err != nil {
		return err
	}

	return processor.files.MarkMetadataExtracted(ctx, file.ID)
}

func (processor *audioProcessor) linkArtist(ctx context.Context, fileID uuid.UUID, metadata tag.Metadata) error {
	trackArtist := strings.TrimSpace(metadata.Artist())
	albumArtist := strings.TrimSpace(metadata.AlbumArtist())
	if trackArtist == "" {
		trackArtist = albumArtist
	}
	if albumArtist == "" {
		albumArtist = trackArtist
	}
	if trackArtist == "" {
		return nil
	}

	artist, err := processor.files.FirstOrCreateArtist(ctx, trackArtist)
	if err != nil {
		return fmt.Errorf("failed to record artist %q: %w", trackArtist, err)
	}

	association := catalog.FileArtist{
		FileID:   fileID,
		ArtistID: artist.ID,
		Title:    nonEmpty(metadata.Title()),
		Genre:    nonEmpty(metadata.Genre()),
	}
	if track, _ := metadata.Track(); track > 0 {
		association.Track = &track
	}

	if title := strings.TrimSpace(metadata.Album()); title != "" {
		owner := artist
		if catalog.NormalizeName(albumArtist) != artist.NormalizedName {
			if owner, err = processor.files.FirstOrCreateArtist(ctx, albumArtist); err != nil {
				return fmt.Errorf("failed to record album artist %q: %w", albumArtist, err)
			}
		}

		var year *int
		if y := metadata.Year(); y > 0 {
			year = &y
		}

		album, err := processor.files.FirstOrCreateAlbum(ctx, title, &owner.ID, year)
		if err != nil {
			return fmt.Errorf("failed to record album %q: %w", title, err)
		}
		association.AlbumID = &album.ID
	}

	return processor.files.AssociateArtist(ctx, association)
}

// readTags returns the tags of the file, or nil if it has none.
func readTags(path string) (tag.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	metadata, err := tag.ReadFrom(f)
	if errors.Is(err, tag.ErrNoTagsFound) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read tags of %s: %w", path, err)
	}

	return metadata, nil
}

func nonEmpty(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}

	return &s
}
