package classify_test

import (
	"context"
	"testing"

	"github.com/hbomb79/Trove/internal/catalog"
	"github.com/hbomb79/Trove/internal/classify"
	mocks "github.com/hbomb79/Trove/internal/classify/mocks"
	"github.com/hbomb79/Trove/internal/progress"
	"github.com/hbomb79/Trove/pkg/logger"
	"github.com/hbomb79/Trove/tests/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

type fixture struct {
	files    *catalog.MemoryStore
	progress *progress.MemoryStore
	enqueuer *mocks.MockEnqueuer
	sut      *classify.Classifier
}

func newFixture(t *testing.T) fixture {
	f := fixture{
		files:    catalog.NewMemoryStore(),
		progress: progress.NewMemoryStore(progress.Config{}),
		enqueuer: mocks.NewMockEnqueuer(t),
	}
	f.sut = classify.New(f.files, f.progress, f.enqueuer)
	return f
}

func (f fixture) localFile(t *testing.T, name string, content []byte) *catalog.File {
	path := helpers.WriteFile(t, t.TempDir(), name, content)
	file := catalog.NewFile()
	file.SourcePath = &path
	require.NoError(t, f.files.CreateFile(context.Background(), file))

	return file
}

func Test_Classify_ImageIsCountedThenEnqueued(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	file := f.localFile(t, "cover.png", helpers.PNGBytes(t, 4, 4, false))

	f.enqueuer.EXPECT().
		Enqueue(mock.Anything, classify.Job{FileID: file.ID, SessionID: "s1", Family: classify.Image}).
		Run(func(ctx context.Context, job classify.Job) {
			counters, err := f.progress.Get(ctx, "s1")
			assert.NoError(t, err)
			assert.EqualValues(t, 1, counters.Total, "total must be counted before the job is enqueued")
		}).
		Return(nil).
		Once()

	family, err := f.sut.Classify(ctx, classify.Request{FileID: file.ID, SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, classify.Image, family)

	stored, err := f.files.GetFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, "image/png", stored.MimeType)
	assert.Equal(t, "cover.png", stored.Filename)
	assert.Equal(t, "png", stored.Extension)
	require.NotNil(t, stored.Family)
	assert.Equal(t, "image", *stored.Family)
}

func Test_Classify_UnsupportedIsRecordedWithoutJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	file := f.localFile(t, "notes.txt", []byte("just some notes\n"))

	family, err := f.sut.Classify(ctx, classify.Request{FileID: file.ID, SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, classify.Unsupported, family)

	counters, err := f.progress.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, counters.Total)

	stored, err := f.files.GetFile(ctx, file.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Family)
	assert.Equal(t, "unsupported", *stored.Family)
}

func Test_Classify_ExistingClassificationIsNotOverwritten(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	file := f.localFile(t, "track.bin", []byte("opaque"))
	require.NoError(t, f.files.SetClassification(ctx, file.ID, catalog.Classification{Filename: "Track One.mp3", Family: "audio"}))

	f.enqueuer.EXPECT().Enqueue(mock.Anything, mock.MatchedBy(func(job classify.Job) bool {
		return job.Family == classify.Audio
	})).Return(nil).Once()

	family, err := f.sut.Classify(ctx, classify.Request{FileID: file.ID})
	require.NoError(t, err)
	assert.Equal(t, classify.Audio, family)

	stored, err := f.files.GetFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, "Track One.mp3", stored.Filename)
}

func Test_Classify_RejectsFilesWithoutLocalContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	url := "https://example.com/a.png"
	file := catalog.NewFile()
	file.SourceURL = &url
	require.NoError(t, f.files.CreateFile(ctx, file))

	_, err := f.sut.Classify(ctx, classify.Request{FileID: file.ID})
	assert.ErrorIs(t, err, classify.ErrFileNotLocal)
}

func Test_FamilyOfMime(t *testing.T) {
	tests := []struct {
		mime     string
		expected classify.Family
	}{
		{"image/png", classify.Image},
		{"image/webp", classify.Image},
		{"audio/mpeg", classify.Audio},
		{"video/mp4", classify.Video},
		{"VIDEO/x-matroska", classify.Video},
		{"text/plain; charset=utf-8", classify.Unsupported},
		{"application/octet-stream", classify.Unsupported},
		{"", classify.Unsupported},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, classify.FamilyOfMime(test.mime), test.mime)
	}
}

func Test_Family_RoundTripsThroughString(t *testing.T) {
	for _, family := range []classify.Family{classify.Unsupported, classify.Image, classify.Audio, classify.Video} {
		parsed, err := classify.ParseFamily(family.String())
		assert.NoError(t, err)
		assert.Equal(t, family, parsed)
	}

	_, err := classify.ParseFamily("hologram")
	assert.Error(t, err)
}
