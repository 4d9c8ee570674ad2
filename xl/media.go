package xl

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var imageContentTypes = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
	"webp": "image/webp",
}

// MediaName derives the stored file name of an image from its URL: a
// name-based UUID of the whole URL followed by the URL's base name. The same
// URL always maps to the same name. format is the decoded image format and
// supplies the extension when the base name has none.
func MediaName(rawURL, format string) string {
	base := "image"
	if u, err := url.Parse(rawURL); err == nil {
		if b := path.Base(u.Path); b != "." && b != "/" && b != "" {
			base = b
		}
	}
	base = strings.Map(func(r rune) rune {
		switch {
		case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z', '0' <= r && r <= '9',
			r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, base)
	if path.Ext(base) == "" && format != "" {
		base += "." + format
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(rawURL)).String() + "-" + base
}

// decodeImageConfig reads the dimensions and format from the image header.
func decodeImageConfig(blob []byte) (image.Config, string, error) {
	return image.DecodeConfig(bytes.NewReader(blob))
}

func mediaExtension(name string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}
