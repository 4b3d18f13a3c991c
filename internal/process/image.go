package process

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/hbomb79/Trove/internal/catalog"
)

type imageProcessor struct {
	files       catalog.Store
	thumbnailer *Thumbnailer
}

func NewImageProcessor(files catalog.Store, thumbnailer *Thumbnailer) *imageProcessor {
	return &imageProcessor{files: files, thumbnailer: thumbnailer}
}

func (processor *imageProcessor) AlreadyProcessed(_ context.Context, file *catalog.File) (bool, error) {
	return thumbnailRecorded(file), nil
}

// Process records the dimensions of the image and a thumbnail for it. An
// image whose content already has a thumbnail is not rendered again.
func (processor *imageProcessor) Process(ctx context.Context, file *catalog.File) error {
	path, ok := file.LocalPath()
	if !ok {
		return fmt.Errorf("file %s has no local content", file.ID)
	}

	hash, err := HashFile(path)
	if err != nil {
		return err
	}

	var thumb *Thumbnail
	if existing, ok := processor.thumbnailer.Existing(hash); ok {
		width, height, err := imageSize(path)
		if err != nil {
			return err
		}
		thumb = &Thumbnail{Path: existing, SourceWidth: width, SourceHeight: height}
	} else if thumb, err = processor.thumbnailer.Render(path, hash); err != nil {
		return err
	}

	return processor.files.SetMediaInfo(ctx, file.ID, catalog.MediaInfo{
		Width:         &thumb.SourceWidth,
		Height:        &thumb.SourceHeight,
		ThumbnailPath: &thumb.Path,
	})
}

func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	config, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image %s: %w", path, err)
	}

	return config.Width, config.Height, nil
}

// thumbnailRecorded is true if the file has a thumbnail which still exists.
func thumbnailRecorded(file *catalog.File) bool {
	if file.ThumbnailPath == nil || *file.ThumbnailPath == "" {
		return false
	}

	_, err := os.Stat(*file.ThumbnailPath)
	return err == nil
}
