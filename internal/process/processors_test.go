package process_test

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hbomb79/Trove/internal/catalog"
	"github.com/hbomb79/Trove/internal/media"
	"github.com/hbomb79/Trove/internal/process"
	"github.com/hbomb79/Trove/internal/process/mocks"
	"github.com/hbomb79/Trove/pkg/logger"
	"github.com/hbomb79/Trove/tests/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

func localFile(t *testing.T, files catalog.Store, dir string, name string, content []byte) *catalog.File {
	path := helpers.WriteFile(t, dir, name, content)
	file := catalog.NewFile()
	file.SourcePath = &path
	require.NoError(t, files.CreateFile(context.Background(), file))

	return file
}

func decodeConfig(t *testing.T, path string) (image.Config, string) {
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	config, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	return config, format
}

func Test_ImageProcessor_Thumbnails(t *testing.T) {
	tests := []struct {
		name           string
		content        []byte
		expectedExt    string
		expectedFormat string
		sourceSize     [2]int
		thumbSize      [2]int
	}{
		{"TransparentIsPNG", helpers.PNGBytes(t, 64, 48, true), ".png", "png", [2]int{64, 48}, [2]int{32, 24}},
		{"OpaquePNGIsJPEG", helpers.PNGBytes(t, 64, 16, false), ".jpg", "jpeg", [2]int{64, 16}, [2]int{32, 8}},
		{"SmallImageIsNotUpscaled", helpers.JPEGBytes(t, 20, 10), ".jpg", "jpeg", [2]int{20, 10}, [2]int{20, 10}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctx := context.Background()
			files := catalog.NewMemoryStore()
			sut := process.NewImageProcessor(files, process.NewThumbnailer(t.TempDir(), 32, 85))
			file := localFile(t, files, t.TempDir(), "img.bin", test.content)

			done, err := sut.AlreadyProcessed(ctx, file)
			require.NoError(t, err)
			assert.False(t, done)

			require.NoError(t, sut.Process(ctx, file))

			updated, err := files.GetFile(ctx, file.ID)
			require.NoError(t, err)
			require.NotNil(t, updated.ThumbnailPath)
			assert.Equal(t, test.expectedExt, filepath.Ext(*updated.ThumbnailPath))
			assert.Equal(t, test.sourceSize[0], *updated.Width)
			assert.Equal(t, test.sourceSize[1], *updated.Height)

			config, format := decodeConfig(t, *updated.ThumbnailPath)
			assert.Equal(t, test.expectedFormat, format)
			assert.Equal(t, test.thumbSize[0], config.Width)
			assert.Equal(t, test.thumbSize[1], config.Height)

			done, err = sut.AlreadyProcessed(ctx, updated)
			require.NoError(t, err)
			assert.True(t, done)
		})
	}
}

func Test_ImageProcessor_IdenticalContentIsRenderedOnce(t *testing.T) {
	ctx := context.Background()
	files := catalog.NewMemoryStore()
	sut := process.NewImageProcessor(files, process.NewThumbnailer(t.TempDir(), 32, 85))

	content := helpers.PNGBytes(t, 40, 40, true)
	first := localFile(t, files, t.TempDir(), "a.png", content)
	second := localFile(t, files, t.TempDir(), "b.png", content)

	require.NoError(t, sut.Process(ctx, first))
	firstFile, err := files.GetFile(ctx, first.ID)
	require.NoError(t, err)

	// Replace the rendered thumbnail; a second render would overwrite it.
	require.NoError(t, os.WriteFile(*firstFile.ThumbnailPath, []byte("sentinel"), 0o644))

	require.NoError(t, sut.Process(ctx, second))
	secondFile, err := files.GetFile(ctx, second.ID)
	require.NoError(t, err)

	assert.Equal(t, *firstFile.ThumbnailPath, *secondFile.ThumbnailPath)
	assert.Equal(t, 40, *secondFile.Width)

	raw, err := os.ReadFile(*secondFile.ThumbnailPath)
	require.NoError(t, err)
	assert.Equal(t, "sentinel", string(raw))
}

func Test_ImageProcessor_CorruptImageFails(t *testing.T) {
	ctx := context.Background()
	files := catalog.NewMemoryStore()
	sut := process.NewImageProcessor(files, process.NewThumbnailer(t.TempDir(), 32, 85))
	file := localFile(t, files, t.TempDir(), "broken.png", []byte("\x89PNG\r\n\x1a\nnot really"))

	assert.Error(t, sut.Process(ctx, file))

	updated, err := files.GetFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Nil(t, updated.ThumbnailPath)
}

func Test_AudioProcessor_UntaggedFileIsMarkedExtracted(t *testing.T) {
	ctx := context.Background()
	files := catalog.NewMemoryStore()
	sut := process.NewAudioProcessor(files, nil)
	file := localFile(t, files, t.TempDir(), "silence.mp3", make([]byte, 512))

	require.NoError(t, sut.Process(ctx, file))

	updated, err := files.GetFile(ctx, file.ID)
	require.NoError(t, err)
	assert.True(t, updated.MetadataExtracted)
	assert.Empty(t, files.ArtistsForFile(file.ID))

	done, err := sut.AlreadyProcessed(ctx, updated)
	require.NoError(t, err)
	assert.True(t, done)
}

func Test_AudioProcessor_RecordsProbedDuration(t *testing.T) {
	ctx := context.Background()
	files := catalog.NewMemoryStore()
	prober := mocks.NewMockProber(t)
	sut := process.NewAudioProcessor(files, prober)
	file := localFile(t, files, t.TempDir(), "song.mp3", make([]byte, 512))

	prober.EXPECT().Probe(mock.Anything, *file.SourcePath).Return(&media.Probe{DurationSeconds: 184.5, Codec: "mp3"}, nil).Once()

	require.NoError(t, sut.Process(ctx, file))

	updated, err := files.GetFile(ctx, file.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.DurationSeconds)
	assert.InDelta(t, 184.5, *updated.DurationSeconds, 0.001)
	assert.Equal(t, "mp3", *updated.Codec)
}

func Test_VideoProcessor_RendersPosterFromFrame(t *testing.T) {
	ctx := context.Background()
	files := catalog.NewMemoryStore()
	prober := mocks.NewMockProber(t)
	extractor := mocks.NewMockFrameExtractor(t)
	scratch := t.TempDir()
	sut := process.NewVideoProcessor(files, prober, extractor, process.NewThumbnailer(t.TempDir(), 32, 85), 0.1, scratch)
	file := localFile(t, files, t.TempDir(), "clip.mp4", []byte("pretend this is a video"))

	prober.EXPECT().Probe(mock.Anything, *file.SourcePath).
		Return(&media.Probe{Width: 1920, Height: 1080, DurationSeconds: 20, Codec: "h264", HasVideo: true}, nil).
		Once()
	extractor.EXPECT().ExtractFrame(mock.Anything, *file.SourcePath, 2*time.Second, mock.Anything).
		Run(func(_ context.Context, _ string, _ time.Duration, output string) {
			assert.True(t, strings.HasPrefix(output, scratch))
			require.NoError(t, os.WriteFile(output, helpers.PNGBytes(t, 64, 36, false), 0o644))
		}).
		Return(nil).
		Once()

	require.NoError(t, sut.Process(ctx, file))

	updated, err := files.GetFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, 1920, *updated.Width)
	assert.Equal(t, 1080, *updated.Height)
	assert.Equal(t, "h264", *updated.Codec)
	require.NotNil(t, updated.ThumbnailPath)

	config, format := decodeConfig(t, *updated.ThumbnailPath)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 32, config.Width)

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "extracted frame should be removed")
}

func Test_VideoProcessor_AudioOnlyHasNoPoster(t *testing.T) {
	ctx := context.Background()
	files := catalog.NewMemoryStore()
	prober := mocks.NewMockProber(t)
	extractor := mocks.NewMockFrameExtractor(t)
	sut := process.NewVideoProcessor(files, prober, extractor, process.NewThumbnailer(t.TempDir(), 32, 85), 0.1, t.TempDir())
	file := localFile(t, files, t.TempDir(), "radio.mkv", []byte("audio only"))

	prober.EXPECT().Probe(mock.Anything, mock.Anything).Return(&media.Probe{DurationSeconds: 5, Codec: "aac"}, nil).Once()

	require.NoError(t, sut.Process(ctx, file))

	updated, err := files.GetFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Nil(t, updated.ThumbnailPath)
	assert.Nil(t, updated.Width)
	assert.Equal(t, "aac", *updated.Codec)
}
