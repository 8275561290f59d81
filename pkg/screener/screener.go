package screener

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"github.com/glaslos/ssdeep"
	"github.com/golang/freetype/truetype"
	"github.com/root4loot/goutils/log"
	"github.com/root4loot/goutils/sliceutil"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// ErrDuplicate is returned when a screenshot is too similar to one already saved.
var ErrDuplicate = errors.New("screenshot is similar to an earlier one")

// Engine renders a URL into a PNG screenshot.
type Engine interface {
	Shoot(ctx context.Context, target string) (*Result, error)
}

// Screener captures screenshots through an Engine and writes them to disk.
type Screener struct {
	Options Options
	engine  Engine
	hashes  map[string]string
	mutex   sync.Mutex
}

// Result contains the result of a screenshot capture.
type Result struct {
	TargetURL  string
	LandingURL string
	Image      Image
	StatusCode int
}

type Image []byte

// StatusError reports a capture whose response status is ignored.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned ignored status code %d", e.URL, e.StatusCode)
}

// Options contains the options for capturing screenshots.
type Options struct {
	Engine                   string  `toml:"engine" yaml:"engine"`                           // rod or chromedp
	CaptureWidth             int     `toml:"width" yaml:"width"`                             // Viewport width
	CaptureHeight            int     `toml:"height" yaml:"height"`                           // Viewport height
	ScaleFactor              float64 `toml:"scale_factor" yaml:"scale_factor"`               // Device scale factor
	DelayBeforeCapture       int     `toml:"delay" yaml:"delay"`                             // Settle delay before capture (seconds)
	Timeout                  int     `toml:"timeout" yaml:"timeout"`                         // Timeout for each capture (seconds)
	UserAgent                string  `toml:"user_agent" yaml:"user_agent"`                   // User agent
	CaptureFull              bool    `toml:"capture_full" yaml:"capture_full"`               // Take a full-page screenshot
	RespectCertificateErrors bool    `toml:"respect_cert_errors" yaml:"respect_cert_errors"` // Respect certificate errors
	UseHTTP2                 bool    `toml:"use_http2" yaml:"use_http2"`                     // Use HTTP2
	IgnoreStatusCodes        []int   `toml:"ignore_status_codes" yaml:"ignore_status_codes"` // Status codes treated as failures
	ImprintURL               bool    `toml:"imprint_url" yaml:"imprint_url"`                 // Add the origin below the image
	AvoidDuplicates          bool    `toml:"avoid_duplicates" yaml:"avoid_duplicates"`       // Skip near-identical screenshots
	DuplicateThreshold       int     `toml:"duplicate_threshold" yaml:"duplicate_threshold"` // Similarity score (1-100) counted as duplicate
}

const (
	EngineRod      = "rod"
	EngineChromedp = "chromedp"
)

// NewOptions returns Options initialized with default values.
func NewOptions() Options {
	return Options{
		Engine:             EngineRod,
		CaptureWidth:       800,
		CaptureHeight:      1000,
		ScaleFactor:        1,
		DelayBeforeCapture: 5,
		Timeout:            30,
		DuplicateThreshold: 96,
		UserAgent:          "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
	}
}

func (o Options) timeout() time.Duration {
	return time.Duration(o.Timeout) * time.Second
}

func (o Options) delay() time.Duration {
	return time.Duration(o.DelayBeforeCapture) * time.Second
}

// NewEngine returns the engine named by options.Engine.
func NewEngine(options Options) (Engine, error) {
	switch options.Engine {
	case EngineRod, "":
		return NewRodEngine(options), nil
	case EngineChromedp:
		return NewChromedpEngine(options), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", options.Engine)
	}
}

// New creates a Screener that captures through engine.
func New(engine Engine, options Options) *Screener {
	return &Screener{
		Options: options,
		engine:  engine,
		hashes:  make(map[string]string),
	}
}

// CaptureFile screenshots target and writes the image to dest.
func (s *Screener) CaptureFile(target, dest string) error {
	_, err := s.Capture(target, dest)
	return err
}

// Capture screenshots target, writes the image to dest and returns the
// capture result. The whole capture, settle delay included, is bounded by
// Options.Timeout.
func (s *Screener) Capture(target, dest string) (*Result, error) {
	ctx := context.Background()
	if s.Options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Options.timeout())
		defer cancel()
	}

	result, err := s.engine.Shoot(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("capturing %s: %w", target, err)
	}

	if s.isIgnoredStatus(result.StatusCode) {
		return result, &StatusError{URL: target, StatusCode: result.StatusCode}
	}

	if s.Options.AvoidDuplicates && s.isDuplicate(target, result.Image) {
		return result, ErrDuplicate
	}

	if s.Options.ImprintURL {
		result.Image, err = result.Image.AddTextToImage(target)
		if err != nil {
			return result, fmt.Errorf("imprinting %s: %w", target, err)
		}
	}

	return result, result.Image.WriteFile(dest)
}

func (s *Screener) isIgnoredStatus(code int) bool {
	codes := make([]string, len(s.Options.IgnoreStatusCodes))
	for i, c := range s.Options.IgnoreStatusCodes {
		codes[i] = strconv.Itoa(c)
	}
	return sliceutil.Contains(codes, strconv.Itoa(code))
}

// isDuplicate checks the image against every screenshot seen so far and
// remembers it when it is unique.
func (s *Screener) isDuplicate(target string, img Image) bool {
	hash, err := ssdeep.FuzzyBytes(img)
	if err != nil {
		log.Debugf("Could not hash screenshot of %s: %v", target, err)
		return false
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for seenURL, seen := range s.hashes {
		score, err := ssdeep.Distance(hash, seen)
		if err != nil {
			continue
		}
		if score >= s.Options.DuplicateThreshold {
			log.Debugf("%s is similar to %s with a score of %d", target, seenURL, score)
			return true
		}
	}
	s.hashes[target] = hash
	return false
}

// WriteFile writes the image to path, creating parent directories as needed.
func (img Image) WriteFile(path string) error {
	if len(img) == 0 {
		return errors.New("empty screenshot")
	}
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return err
	}
	return os.WriteFile(path, img, 0o644)
}

// AddTextToImage adds the origin of rawURL below the image.
func (img Image) AddTextToImage(rawURL string) (Image, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	host := parsedURL.Host
	if hostWithoutPort, port, found := strings.Cut(host, ":"); found {
		if (parsedURL.Scheme == "http" && port == "80") || (parsedURL.Scheme == "https" && port == "443") {
			host = hostWithoutPort
		}
	}
	printURL := parsedURL.Scheme + "://" + host

	src, err := png.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	const padding = 20
	const borderSize = 1

	w := src.Bounds().Dx()
	h := src.Bounds().Dy() + padding*2 + borderSize
	dc := gg.NewContext(w, h)

	dc.DrawImage(src, 0, 0)

	yLine := float64(src.Bounds().Dy())
	dc.SetColor(color.Black)
	dc.SetLineWidth(float64(borderSize))
	dc.DrawLine(0, yLine, float64(w), yLine)
	dc.Stroke()
	dc.SetColor(color.White)
	dc.DrawRectangle(0, yLine+borderSize, float64(w), float64(padding*2))
	dc.Fill()

	face, err := loadFont()
	if err != nil {
		return nil, err
	}
	dc.SetColor(color.Black)
	dc.SetFontFace(face)
	dc.DrawStringAnchored(printURL, float64(w)/2, yLine+float64(padding), 0.5, 0.5)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return buf.Bytes(), nil
}

func loadFont() (font.Face, error) {
	ttFont, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	return truetype.NewFace(ttFont, &truetype.Options{
		Size: 14,
	}), nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
