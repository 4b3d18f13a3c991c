package process

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hbomb79/Trove/internal/catalog"
)

type videoProcessor struct {
	files        catalog.Store
	prober       Prober
	extractor    FrameExtractor
	thumbnailer  *Thumbnailer
	posterOffset float64
	scratchDir   string
}

func NewVideoProcessor(files catalog.Store, prober Prober, extractor FrameExtractor, thumbnailer *Thumbnailer, posterOffset float64, scratchDir string) *videoProcessor {
	return &videoProcessor{
		files:        files,
		prober:       prober,
		extractor:    extractor,
		thumbnailer:  thumbnailer,
		posterOffset: posterOffset,
		scratchDir:   scratchDir,
	}
}

func (processor *videoProcessor) AlreadyProcessed(_ context.Context, file *catalog.File) (bool, error) {
	return thumbnailRecorded(file), nil
}

// Process records the properties of the video's primary stream and a
// poster thumbnail, taken from the frame at PosterOffset of the duration.
// The poster is named by the video's content hash.
func (processor *videoProcessor) Process(ctx context.Context, file *catalog.File) error {
	path, ok := file.LocalPath()
	if !ok {
		return fmt.Errorf("file %s has no local content", file.ID)
	}

	probe, err := processor.prober.Probe(ctx, path)
	if err != nil {
		return err
	}

	info := catalog.MediaInfo{DurationSeconds: &probe.DurationSeconds, Codec: &probe.Codec}
	if probe.HasVideo {
		info.Width, info.Height = &probe.Width, &probe.Height
	}

	hash, err := HashFile(path)
	if err != nil {
		return err
	}

	poster, ok := processor.thumbnailer.Existing(hash)
	if !ok && probe.HasVideo {
		if poster, err = processor.renderPoster(ctx, path, hash, probe.DurationSeconds); err != nil {
			return err
		}
	}
	if poster != "" {
		info.ThumbnailPath = &poster
	}

	return processor.files.SetMediaInfo(ctx, file.ID, info)
}

func (processor *videoProcessor) renderPoster(ctx context.Context, path string, hash string, duration float64) (string, error) {
	frame := filepath.Join(processor.scratchDir, fmt.Sprintf("frame-%s.png", hash))
	defer os.Remove(frame)

	at := time.Duration(duration * processor.posterOffset * float64(time.Second))
	if err := processor.extractor.ExtractFrame(ctx, path, at, frame); err != nil {
		return "", err
	}

	thumb, err := processor.thumbnailer.Render(frame, hash)
	if err != nil {
		return "", err
	}

	return thumb.Path, nil
}
