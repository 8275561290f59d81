package screener

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/root4loot/goutils/log"
)

// ChromedpEngine captures pages through the Chrome DevTools Protocol using
// chromedp.
type ChromedpEngine struct {
	Options Options
}

// NewChromedpEngine returns a chromedp-backed Engine.
func NewChromedpEngine(options Options) *ChromedpEngine {
	return &ChromedpEngine{Options: options}
}

// allocatorOptions appends the configured browser flags to the chromedp defaults.
func (e *ChromedpEngine) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	if !e.Options.RespectCertificateErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}

	if !e.Options.UseHTTP2 {
		opts = append(opts, chromedp.Flag("disable-http2", true))
	}

	if e.Options.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(e.Options.UserAgent))
	}

	return opts
}

// Shoot navigates to target, waits for the settle delay and returns the
// screenshot.
func (e *ChromedpEngine) Shoot(ctx context.Context, target string) (*Result, error) {
	result := &Result{TargetURL: target}

	allocator, cancelAllocator := chromedp.NewExecAllocator(ctx, e.allocatorOptions()...)
	defer cancelAllocator()

	cctx, cancelContext := chromedp.NewContext(allocator)
	defer cancelContext()

	// the first document response is the status of the page itself
	var once sync.Once
	var mu sync.Mutex
	chromedp.ListenTarget(cctx, func(ev interface{}) {
		if resp, ok := ev.(*network.EventResponseReceived); ok && resp.Type == network.ResourceTypeDocument {
			once.Do(func() {
				mu.Lock()
				result.StatusCode = int(resp.Response.Status)
				mu.Unlock()
			})
		}
	})

	scale := e.Options.ScaleFactor
	if scale <= 0 {
		scale = 1
	}

	var image []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(e.Options.CaptureWidth), int64(e.Options.CaptureHeight), chromedp.EmulateScale(scale)),
		chromedp.Navigate(target),
		chromedp.Sleep(e.Options.delay()),
		chromedp.Location(&result.LandingURL),
	}

	if e.Options.CaptureFull {
		tasks = append(tasks, chromedp.FullScreenshot(&image, 100))
	} else {
		tasks = append(tasks, chromedp.CaptureScreenshot(&image))
	}

	log.Debugf("Running chromedp tasks for %s", target)
	if err := chromedp.Run(cctx, tasks); err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	result.Image = image
	return result, nil
}
