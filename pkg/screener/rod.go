package screener

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/root4loot/goutils/log"
)

// RodEngine captures pages with a dedicated headless browser per shot.
type RodEngine struct {
	Options Options
}

// NewRodEngine returns a rod-backed Engine.
func NewRodEngine(options Options) *RodEngine {
	return &RodEngine{Options: options}
}

func (e *RodEngine) launcher(ctx context.Context) *launcher.Launcher {
	l := launcher.New().
		Context(ctx).
		Headless(true).
		NoSandbox(true)

	if path, found := launcher.LookPath(); found {
		l = l.Bin(path)
	}

	if e.Options.UserAgent != "" {
		l.Set("user-agent", e.Options.UserAgent)
	}

	if !e.Options.RespectCertificateErrors {
		l.Set("ignore-certificate-errors", "true")
	}

	if !e.Options.UseHTTP2 {
		l.Set("disable-http2", "true")
	}

	return l
}

// Shoot navigates to target, waits for the page to load and settle, and
// returns the screenshot.
func (e *RodEngine) Shoot(ctx context.Context, target string) (*Result, error) {
	result := &Result{TargetURL: target}

	l := e.launcher(ctx)
	defer l.Cleanup()
	defer l.Kill()

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}

	if e.Options.CaptureWidth > 0 && e.Options.CaptureHeight > 0 {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             e.Options.CaptureWidth,
			Height:            e.Options.CaptureHeight,
			DeviceScaleFactor: e.Options.ScaleFactor,
			Mobile:            false,
		})
		if err != nil {
			return nil, fmt.Errorf("setting viewport: %w", err)
		}
	}

	var response proto.NetworkResponseReceived
	wait := page.WaitEvent(&response)

	log.Debugf("Navigating to %s", target)
	if err := page.Navigate(target); err != nil {
		return nil, fmt.Errorf("navigating to %s: %w", target, err)
	}

	wait()

	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("waiting for %s to load: %w", target, err)
	}

	if err := sleepContext(ctx, e.Options.delay()); err != nil {
		return nil, err
	}

	if info, err := page.Info(); err == nil {
		result.LandingURL = info.URL
	}

	result.Image, err = page.Screenshot(e.Options.CaptureFull, nil)
	if err != nil {
		return nil, fmt.Errorf("taking screenshot: %w", err)
	}

	if response.Response != nil {
		result.StatusCode = response.Response.Status
	}

	return result, nil
}
