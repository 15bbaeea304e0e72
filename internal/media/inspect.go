// Package media sniffs, fetches and decodes the images and videos submitted
// for deepfake detection.
package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"

	"github.com/veritas/backend/pkg/apperr"
)

type Kind string

const (
	KindImage       Kind = "image"
	KindVideo       Kind = "video"
	KindHTML        Kind = "html"
	KindUnsupported Kind = "unsupported"
)

// Info describes sniffed content.
type Info struct {
	MIME      string
	Extension string
	Kind      Kind
}

func Inspect(data []byte) Info {
	return infoFor(mimetype.Detect(data))
}

func InspectFile(path string) (Info, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to inspect %s: %w", path, err)
	}
	return infoFor(mt), nil
}

func infoFor(mt *mimetype.MIME) Info {
	info := Info{MIME: mt.String(), Extension: mt.Extension(), Kind: KindUnsupported}
	for m := mt; m != nil; m = m.Parent() {
		switch {
		case strings.HasPrefix(m.String(), "image/"):
			info.Kind = KindImage
			return info
		case strings.HasPrefix(m.String(), "video/"):
			info.Kind = KindVideo
			return info
		case m.Is("text/html"):
			info.Kind = KindHTML
			return info
		}
	}
	return info
}

// ImageConfig decodes only the header of an image. Formats other than JPEG,
// PNG, GIF and WebP are reported as unsupported.
func ImageConfig(data []byte) (image.Config, string, error) {
	if Inspect(data).Kind != KindImage {
		return image.Config{}, "", apperr.Unsupported("not an image")
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, "", apperr.Unsupported("cannot decode image: %v", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return image.Config{}, "", apperr.Unsupported("image has no pixels")
	}
	return cfg, format, nil
}
