package classify

import (
	"fmt"
	"strings"
)

// Family is the closed set of media kinds which Trove knows how to
// process. Every switch over a Family must handle each member.
type Family int

const (
	Unsupported Family = iota
	Image
	Audio
	Video
)

var familyNames = map[Family]string{
	Unsupported: "unsupported",
	Image:       "image",
	Audio:       "audio",
	Video:       "video",
}

func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}

	return fmt.Sprintf("Family(%d)", int(f))
}

// Supported is true for families which have a processor.
func (f Family) Supported() bool {
	switch f {
	case Image, Audio, Video:
		return true
	case Unsupported:
		return false
	default:
		panic(fmt.Sprintf("classify: unknown family %d", int(f)))
	}
}

// ParseFamily is the inverse of Family.String.
func ParseFamily(s string) (Family, error) {
	for f, name := range familyNames {
		if name == s {
			return f, nil
		}
	}

	return Unsupported, fmt.Errorf("unknown media family %q", s)
}

// FamilyOfMime resolves the family of a detected MIME type. Parameters
// (e.g. "; charset=utf-8") are ignored.
func FamilyOfMime(mime string) Family {
	mime, _, _ = strings.Cut(strings.ToLower(mime), ";")
	major, _, _ := strings.Cut(strings.TrimSpace(mime), "/")

	switch major {
	case "image":
		return Image
	case "audio":
		return Audio
	case "video":
		return Video
	}

	return Unsupported
}
