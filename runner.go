package sitesnap

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/goutils/urlutil"
	"github.com/root4loot/sitesnap/pkg/batch"
	"github.com/root4loot/sitesnap/pkg/config"
	"github.com/root4loot/sitesnap/pkg/gallery"
	"github.com/root4loot/sitesnap/pkg/history"
	"github.com/root4loot/sitesnap/pkg/screener"
	"github.com/root4loot/sitesnap/pkg/worklist"
)

const Version = "0.1.0"

// Setup stages reported by SetupError.
const (
	StagePrepare = "prepare output"
	StageInput   = "read input"
	StageHistory = "open history"
)

// SetupError is a failure before any capture was launched.
type SetupError struct {
	Stage string
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// Runner captures every site of a work list into an output folder.
type Runner struct {
	Config   config.Config
	screener *screener.Screener
	namer    screener.Namer
}

// Summary describes a finished run.
type Summary struct {
	Captured int
	Failed   int
	Outcomes []batch.Outcome[worklist.Item]
}

// NewRunner validates cfg and returns a Runner. A nil engine selects the
// engine named in cfg.Capture.
func NewRunner(cfg config.Config, engine screener.Engine) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if engine == nil {
		var err error
		engine, err = screener.NewEngine(cfg.Capture)
		if err != nil {
			return nil, err
		}
	}

	return &Runner{
		Config:   cfg,
		screener: screener.New(engine, cfg.Capture),
		namer:    screener.NewNamer(cfg.Ext),
	}, nil
}

// Run prepares the output folder, captures every item and then renders the
// gallery and records history. Only setup failures are returned; failed
// captures are part of the Summary.
func (r *Runner) Run() (Summary, error) {
	cfg := r.Config

	if err := gallery.Prepare(cfg.OutDir, cfg.ShotsDir, cfg.TemplateDir); err != nil {
		return Summary{}, &SetupError{Stage: StagePrepare, Err: err}
	}

	items, err := worklist.Load(cfg.Input)
	if err != nil {
		return Summary{}, &SetupError{Stage: StageInput, Err: err}
	}

	var store *history.Store
	if cfg.HistoryDB != "" {
		store, err = history.Open(cfg.HistoryDB)
		if err != nil {
			return Summary{}, &SetupError{Stage: StageHistory, Err: err}
		}
		defer store.Close()
	}

	run := history.NewRun(cfg.Input)
	log.Debugf("Starting run %s with %d sites: %s", run.ID, len(items), strings.Join(worklist.URLs(items), ", "))

	landed := &landings{urls: make(map[string]string)}
	summary := Summary{Outcomes: r.capture(items, landed)}
	run.FinishedAt = time.Now()

	var entries []gallery.Entry
	for _, o := range summary.Outcomes {
		file := r.namer.Filename(o.Item.URL)
		stored := history.Outcome{URL: o.Item.URL, File: file, LandingURL: landed.get(o.Item.URL)}
		if o.Failed() {
			summary.Failed++
			stored.Error = o.Err.Error()
		} else {
			summary.Captured++
			entries = append(entries, gallery.Entry{URL: o.Item.URL, File: file})
		}
		run.Outcomes = append(run.Outcomes, stored)
	}

	if err := gallery.Render(cfg.OutDir, cfg.ShotsDir, cfg.Gallery, entries); err != nil {
		log.Errorf("Could not render gallery: %v", err)
	}

	if store != nil {
		if err := store.Record(context.Background(), run); err != nil {
			log.Errorf("Could not record run %s: %v", run.ID, err)
		}
	}

	log.Infof("%d captured, %d failed", summary.Captured, summary.Failed)
	return summary, nil
}

// capture runs the work list through the wave scheduler. Targets that end up
// on another URL are noted in landed.
func (r *Runner) capture(items []worklist.Item, landed *landings) []batch.Outcome[worklist.Item] {
	s := batch.New[worklist.Item](r.Config.MaxParallel)

	s.OnLaunch = func(_ int, item worklist.Item) {
		log.Infof("Launching %s", item.URL)
	}
	s.OnOutcome = func(o batch.Outcome[worklist.Item]) {
		if o.Failed() {
			log.Errorf("Failed on: %s: %v", o.Item.URL, o.Err)
			return
		}
		log.Resultf("Screenshot saved to %s", r.destination(o.Item.URL))
	}

	return s.Run(items, func(item worklist.Item) error {
		target := captureURL(item.URL)
		result, err := r.screener.Capture(target, r.destination(item.URL))
		if result != nil && result.LandingURL != "" && result.LandingURL != target {
			log.Debugf("%s landed on %s", target, result.LandingURL)
			landed.set(item.URL, result.LandingURL)
		}
		return err
	})
}

// landings maps work list URLs to the URL their capture landed on.
type landings struct {
	mu   sync.Mutex
	urls map[string]string
}

func (l *landings) set(rawURL, landing string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.urls[rawURL] = landing
}

func (l *landings) get(rawURL string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.urls[rawURL]
}

// destination is the path a screenshot of rawURL is written to.
func (r *Runner) destination(rawURL string) string {
	return filepath.Join(r.Config.OutDir, r.Config.ShotsDir, r.namer.Filename(rawURL))
}

// captureURL adds https:// to targets given without a scheme.
func captureURL(target string) string {
	if !urlutil.HasScheme(target) {
		log.Debugf("No scheme specified for %s: trying HTTPS", target)
		return "https://" + target
	}
	return target
}
