// Package gallery prepares the output site and lists captured screenshots in
// its index page.
package gallery

import (
	"errors"
	"fmt"
	"html"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	cp "github.com/otiai10/copy"
	"github.com/root4loot/goutils/log"
)

// IndexFile is the page the gallery is rendered into.
const IndexFile = "index.html"

// DefaultSelector matches the element screenshots are appended to.
const DefaultSelector = "#gallery"

const figureClass = "sitesnap-shot"

// Entry is one captured screenshot, File being relative to the shots directory.
type Entry struct {
	URL  string
	File string
}

// Prepare creates outDir/shotsDir and copies templateDir into outDir.
// An empty templateDir skips the copy.
func Prepare(outDir, shotsDir, templateDir string) error {
	if err := os.MkdirAll(filepath.Join(outDir, shotsDir), 0o755); err != nil {
		return fmt.Errorf("creating output folder: %w", err)
	}

	if templateDir == "" {
		return nil
	}

	fi, err := os.Stat(templateDir)
	if err != nil {
		return fmt.Errorf("template folder: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("template folder %s is not a directory", templateDir)
	}

	if err := cp.Copy(templateDir, outDir); err != nil {
		return fmt.Errorf("copying template %s to %s: %w", templateDir, outDir, err)
	}
	log.Debugf("Copied template %s to %s", templateDir, outDir)
	return nil
}

// Render appends a figure per entry to the element matching selector in
// outDir/index.html. Figures from an earlier render are replaced. A missing
// index page or element is not an error.
func Render(outDir, shotsDir, selector string, entries []Entry) error {
	if selector == "" {
		selector = DefaultSelector
	}
	index := filepath.Join(outDir, IndexFile)

	f, err := os.Open(index)
	if errors.Is(err, os.ErrNotExist) {
		log.Debugf("No %s in %s, skipping gallery", IndexFile, outDir)
		return nil
	}
	if err != nil {
		return err
	}

	doc, err := goquery.NewDocumentFromReader(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("parsing %s: %w", index, err)
	}

	target := doc.Find(selector).First()
	if target.Length() == 0 {
		log.Warnf("No element matches %q in %s, skipping gallery", selector, index)
		return nil
	}

	target.Find("figure." + figureClass).Remove()

	var b strings.Builder
	for _, e := range entries {
		src := shotPath(shotsDir, e.File)
		fmt.Fprintf(&b, `<figure class="%s"><a href="%s"><img src="%s" alt="%s" loading="lazy"/></a><figcaption><a href="%s">%s</a></figcaption></figure>`,
			figureClass,
			html.EscapeString(src), html.EscapeString(src), html.EscapeString(e.URL),
			html.EscapeString(e.URL), html.EscapeString(e.URL))
	}
	target.AppendHtml(b.String())

	out, err := doc.Html()
	if err != nil {
		return fmt.Errorf("rendering %s: %w", index, err)
	}
	return os.WriteFile(index, []byte(out), 0o644)
}

// shotPath is the relative URL of file inside shotsDir. Every segment is
// escaped since file names keep characters such as ? # and %.
func shotPath(shotsDir, file string) string {
	var segments []string
	for _, seg := range strings.Split(filepath.ToSlash(shotsDir), "/") {
		if seg != "" && seg != "." {
			segments = append(segments, url.PathEscape(seg))
		}
	}
	return strings.Join(append(segments, url.PathEscape(file)), "/")
}
