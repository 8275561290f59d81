package screener

import (
	"regexp"
	"strings"
)

// DefaultExt is the extension appended to derived filenames.
const DefaultExt = ".png"

var schemeRe = regexp.MustCompile(`https?:`)

// Namer maps a URL to the filename its screenshot is stored under.
//
// Every "http:" or "https:" occurrence is dropped, path separators are
// removed and Ext is appended. Nothing else is escaped, so two URLs that only
// differ in removed characters map to the same name.
type Namer struct {
	Ext string
}

// NewNamer returns a Namer using ext, or DefaultExt when ext is empty.
func NewNamer(ext string) Namer {
	if ext == "" {
		ext = DefaultExt
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return Namer{Ext: ext}
}

// Filename derives the output filename for rawURL.
func (n Namer) Filename(rawURL string) string {
	name := schemeRe.ReplaceAllString(rawURL, "")
	name = strings.NewReplacer("/", "", `\`, "").Replace(name)
	ext := n.Ext
	if ext == "" {
		ext = DefaultExt
	}
	return name + ext
}

// DeriveFilename is Filename with the default extension.
func DeriveFilename(rawURL string) string {
	return NewNamer(DefaultExt).Filename(rawURL)
}
