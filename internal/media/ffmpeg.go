// Package media wraps ffprobe and ffmpeg for the metadata and poster
// frames needed by the processors.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/floostack/transcoder"
	"github.com/floostack/transcoder/ffmpeg"
	"github.com/hbomb79/Trove/pkg/logger"
)

var (
	log = logger.Get("FFmpeg")

	ErrNoStreams = errors.New("media has no audio or video streams")
)

type (
	Config struct {
		FfmpegBinPath  string `yaml:"ffmpeg_bin" env:"FFMPEG_BIN" env-default:"/usr/bin/ffmpeg"`
		FfprobeBinPath string `yaml:"ffprobe_bin" env:"FFPROBE_BIN" env-default:"/usr/bin/ffprobe"`
	}

	// Probe holds the properties of the primary stream of a media file. For
	// files with a video stream that stream is primary, else the first audio
	// stream is used.
	Probe struct {
		Width           int
		Height          int
		DurationSeconds float64
		Codec           string
		HasVideo        bool
	}

	FFmpeg struct {
		config Config
	}
)

func New(config Config) *FFmpeg {
	return &FFmpeg{config: config}
}

// Probe runs ffprobe against the file at the path given.
func (f *FFmpeg) Probe(ctx context.Context, path string) (*Probe, error) {
	metadata, err := f.transcoder(ctx).Input(path).GetMetadata()
	if err != nil {
		return nil, fmt.Errorf("failed to extract file metadata information using ffprobe: %w", parseFfmpegError(err))
	}

	return probeFromMetadata(metadata)
}

func probeFromMetadata(metadata transcoder.Metadata) (*Probe, error) {
	var primary transcoder.Streams
	for _, stream := range metadata.GetStreams() {
		if stream.GetCodecType() == "video" {
			primary = stream
			break
		}
		if primary == nil && stream.GetCodecType() == "audio" {
			primary = stream
		}
	}
	if primary == nil {
		return nil, ErrNoStreams
	}

	probe := &Probe{Codec: primary.GetCodecName(), HasVideo: primary.GetCodecType() == "video"}
	if probe.HasVideo {
		probe.Width = primary.GetWidth()
		probe.Height = primary.GetHeight()
	}

	if format := metadata.GetFormat(); format != nil {
		if d, err := strconv.ParseFloat(format.GetDuration(), 64); err == nil {
			probe.DurationSeconds = d
		}
	}

	return probe, nil
}

// ExtractFrame writes the single video frame found at the offset given
// to the output path as an image, overwriting anything already there.
func (f *FFmpeg) ExtractFrame(ctx context.Context, path string, at time.Duration, output string) error {
	if err := os.MkdirAll(filepath.Dir(output), os.ModeDir|os.ModePerm); err != nil {
		return err
	}

	seek := strconv.FormatFloat(at.Seconds(), 'f', 3, 64)
	format := "image2"
	overwrite := true
	opts := &ffmpeg.Options{
		SeekTime:     &seek,
		OutputFormat: &format,
		Overwrite:    &overwrite,
		ExtraArgs:    map[string]interface{}{"-frames:v": 1},
	}

	log.Debugf("Extracting frame at %s from %s to %s\n", seek, path, output)
	if _, err := f.transcoder(ctx).Input(path).Output(output).WithOptions(opts).Start(opts); err != nil {
		return fmt.Errorf("failed to extract frame: %w", parseFfmpegError(err))
	}

	if _, err := os.Stat(output); err != nil {
		return fmt.Errorf("ffmpeg produced no frame at %s: %w", seek, err)
	}

	return nil
}

func (f *FFmpeg) transcoder(ctx context.Context) transcoder.Transcoder {
	return ffmpeg.New(&ffmpeg.Config{
		FfmpegBinPath:  f.config.FfmpegBinPath,
		FfprobeBinPath: f.config.FfprobeBinPath,
	}).WithContext(&ctx)
}

// parseFfmpegError picks the relevant message out of the (very large)
// error output of ffmpeg, which embeds a JSON encoded error object.
func parseFfmpegError(err error) error {
	groups := ffmpegMessageMatcher.FindStringSubmatch(err.Error())
	if len(groups) < 2 {
		return err
	}

	var out struct {
		Error struct {
			String string `json:"string"`
		} `json:"error"`
	}
	if jsonErr := json.Unmarshal([]byte(groups[1]), &out); jsonErr != nil || out.Error.String == "" {
		return errors.New(groups[1])
	}

	return errors.New(out.Error.String)
}

var ffmpegMessageMatcher = regexp.MustCompile(`(?s)message: ({.*})`)
