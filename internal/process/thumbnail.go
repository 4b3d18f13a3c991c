package process

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Thumbnail describes a rendered (or previously rendered) thumbnail, along
// with the dimensions of the image it was rendered from.
type Thumbnail struct {
	Path         string
	SourceWidth  int
	SourceHeight int
}

// Thumbnailer renders thumbnails named by the SHA-256 of the content they
// represent, so identical content is only ever rendered once.
type Thumbnailer struct {
	dir     string
	width   int
	quality int
}

func NewThumbnailer(dir string, width int, quality int) *Thumbnailer {
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}

	return &Thumbnailer{dir: dir, width: width, quality: quality}
}

// Existing returns the path of the thumbnail already rendered for the
// content hash, if there is one.
func (thumbnailer *Thumbnailer) Existing(hash string) (string, bool) {
	for _, ext := range []string{".png", ".jpg"} {
		path := thumbnailer.path(hash, ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}

	return "", false
}

// Render decodes the image at the path given and writes its thumbnail
// under the content hash. Images with any transparency are stored as PNG,
// all others as JPEG. The thumbnail is never wider than the configured
// width, and keeps the aspect ratio of the source.
func (thumbnailer *Thumbnailer) Render(sourcePath string, hash string) (*Thumbnail, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", sourcePath, err)
	}

	bounds := src.Bounds()
	thumb := &Thumbnail{SourceWidth: bounds.Dx(), SourceHeight: bounds.Dy()}
	if thumb.SourceWidth == 0 || thumb.SourceHeight == 0 {
		return nil, errors.New("image has no pixels")
	}

	width, height := thumbnailer.scaledSize(thumb.SourceWidth, thumb.SourceHeight)
	transparent := hasTransparency(src)

	ext := ".jpg"
	var dst draw.Image = image.NewRGBA(image.Rect(0, 0, width, height))
	if transparent {
		ext = ".png"
		dst = image.NewNRGBA(image.Rect(0, 0, width, height))
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)

	thumb.Path = thumbnailer.path(hash, ext)
	err = writeAtomic(thumb.Path, func(w io.Writer) error {
		if transparent {
			return png.Encode(w, dst)
		}
		return jpeg.Encode(w, dst, &jpeg.Options{Quality: thumbnailer.quality})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write thumbnail: %w", err)
	}

	return thumb, nil
}

func (thumbnailer *Thumbnailer) scaledSize(width, height int) (int, int) {
	if thumbnailer.width <= 0 || width <= thumbnailer.width {
		return width, height
	}

	return thumbnailer.width, max(1, height*thumbnailer.width/width)
}

func (thumbnailer *Thumbnailer) path(hash string, ext string) string {
	return filepath.Join(thumbnailer.dir, hash[:2], hash+ext)
}

func hasTransparency(img image.Image) bool {
	if opaque, ok := img.(interface{ Opaque() bool }); ok {
		return !opaque.Opaque()
	}

	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return true
			}
		}
	}

	return false
}

// HashFile returns the hex SHA-256 of the file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeAtomic writes the file via a temporary sibling which is renamed in
// to place once complete.
func writeAtomic(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModeDir|os.ModePerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}
