package sitesnap

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/root4loot/sitesnap/pkg/config"
	"github.com/root4loot/sitesnap/pkg/history"
	"github.com/root4loot/sitesnap/pkg/screener"
)

// stubEngine renders a blank PNG for every target except those in fail.
type stubEngine struct {
	mu       sync.Mutex
	fail     map[string]bool
	redirect map[string]string
	targets  []string
}

func (e *stubEngine) Shoot(ctx context.Context, target string) (*screener.Result, error) {
	e.mu.Lock()
	e.targets = append(e.targets, target)
	e.mu.Unlock()

	if e.fail[target] {
		return nil, errors.New("net::ERR_CONNECTION_REFUSED")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil {
		return nil, err
	}
	landing := target
	if to, ok := e.redirect[target]; ok {
		landing = to
	}
	return &screener.Result{TargetURL: target, LandingURL: landing, Image: buf.Bytes(), StatusCode: 200}, nil
}

func testConfig(t *testing.T, sites string) config.Config {
	t.Helper()
	dir := t.TempDir()

	template := filepath.Join(dir, "src")
	if err := os.MkdirAll(template, 0o755); err != nil {
		t.Fatal(err)
	}
	index := `<html><body><div id="gallery"></div></body></html>`
	if err := os.WriteFile(filepath.Join(template, "index.html"), []byte(index), 0o644); err != nil {
		t.Fatal(err)
	}

	input := filepath.Join(dir, "sites.json")
	if err := os.WriteFile(input, []byte(sites), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Input = input
	cfg.OutDir = filepath.Join(dir, "dist")
	cfg.TemplateDir = template
	cfg.MaxParallel = 3
	cfg.HistoryDB = filepath.Join(dir, "history.db")
	cfg.Capture.DelayBeforeCapture = 0
	return cfg
}

func TestRunCapturesAndIsolatesFailures(t *testing.T) {
	cfg := testConfig(t, `[
		{"url": "https://one.example"},
		{"url": "https://two.example/a/b"},
		{"url": "https://three.example"},
		{"url": "https://four.example"},
		{"url": "https://five.example"},
		{"url": "six.example"},
		{"url": "https://seven.example"}
	]`)

	engine := &stubEngine{fail: map[string]bool{"https://four.example": true}}
	runner, err := NewRunner(cfg, engine)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	summary, err := runner.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Captured != 6 || summary.Failed != 1 {
		t.Fatalf("Expected 6 captured and 1 failed, got %d/%d", summary.Captured, summary.Failed)
	}
	if len(engine.targets) != 7 {
		t.Errorf("Expected 7 capture attempts, got %d", len(engine.targets))
	}

	shots := filepath.Join(cfg.OutDir, cfg.ShotsDir)
	for _, name := range []string{"one.example.png", "two.exampleab.png", "six.example.png"} {
		if _, err := os.Stat(filepath.Join(shots, name)); err != nil {
			t.Errorf("Expected %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(shots, "four.example.png")); !os.IsNotExist(err) {
		t.Errorf("Failed capture should not produce a file")
	}

	index, err := os.ReadFile(filepath.Join(cfg.OutDir, "index.html"))
	if err != nil {
		t.Fatalf("Reading index failed: %v", err)
	}
	if got := strings.Count(string(index), "<figure"); got != 6 {
		t.Errorf("Expected 6 gallery figures, got %d", got)
	}

	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	runs, err := store.Runs(context.Background(), 1)
	if err != nil || len(runs) != 1 {
		t.Fatalf("Expected one recorded run, got %v (%v)", runs, err)
	}
	if runs[0].Failed() != 1 || len(runs[0].Outcomes) != 7 {
		t.Errorf("Unexpected recorded run %+v", runs[0])
	}
}

func TestRunAddsSchemeToBareTargets(t *testing.T) {
	cfg := testConfig(t, `[{"url": "bare.example/path"}]`)
	engine := &stubEngine{}

	runner, err := NewRunner(cfg, engine)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := runner.Run(); err != nil {
		t.Fatal(err)
	}

	if len(engine.targets) != 1 || engine.targets[0] != "https://bare.example/path" {
		t.Errorf("Unexpected targets %v", engine.targets)
	}
}

func TestRunRecordsLandingURL(t *testing.T) {
	cfg := testConfig(t, `[{"url": "https://old.example"}, {"url": "stay.example"}]`)
	engine := &stubEngine{redirect: map[string]string{"https://old.example": "https://new.example/"}}

	runner, err := NewRunner(cfg, engine)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := runner.Run(); err != nil {
		t.Fatal(err)
	}

	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	runs, err := store.Runs(context.Background(), 1)
	if err != nil || len(runs) != 1 {
		t.Fatalf("Expected one recorded run, got %v (%v)", runs, err)
	}

	outcomes := runs[0].Outcomes
	if outcomes[0].LandingURL != "https://new.example/" {
		t.Errorf("Expected redirect to be recorded, got %+v", outcomes[0])
	}
	if outcomes[1].LandingURL != "" {
		t.Errorf("Expected no landing URL when the target did not move, got %+v", outcomes[1])
	}
}

func TestRunEmptyList(t *testing.T) {
	cfg := testConfig(t, `[]`)
	engine := &stubEngine{}

	runner, err := NewRunner(cfg, engine)
	if err != nil {
		t.Fatal(err)
	}
	summary, err := runner.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(summary.Outcomes) != 0 || len(engine.targets) != 0 {
		t.Errorf("Empty list should launch nothing, got %+v", summary)
	}
}

func TestRunSetupFailures(t *testing.T) {
	t.Run("missing input", func(t *testing.T) {
		cfg := testConfig(t, `[]`)
		cfg.Input = filepath.Join(t.TempDir(), "missing.json")
		assertSetupStage(t, cfg, StageInput)
	})

	t.Run("invalid input", func(t *testing.T) {
		cfg := testConfig(t, `{"url": "not an array"}`)
		assertSetupStage(t, cfg, StageInput)
	})

	t.Run("missing template", func(t *testing.T) {
		cfg := testConfig(t, `[]`)
		cfg.TemplateDir = filepath.Join(t.TempDir(), "nope")
		assertSetupStage(t, cfg, StagePrepare)
	})
}

func assertSetupStage(t *testing.T, cfg config.Config, stage string) {
	t.Helper()
	engine := &stubEngine{}

	runner, err := NewRunner(cfg, engine)
	if err != nil {
		t.Fatal(err)
	}
	_, err = runner.Run()

	var setupErr *SetupError
	if !errors.As(err, &setupErr) {
		t.Fatalf("Expected SetupError, got %v", err)
	}
	if setupErr.Stage != stage {
		t.Errorf("Expected stage %q, got %q", stage, setupErr.Stage)
	}
	if len(engine.targets) != 0 {
		t.Errorf("No capture should be launched after a setup failure")
	}
}

func TestNewRunnerRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.MaxParallel = 0
	if _, err := NewRunner(cfg, &stubEngine{}); err == nil {
		t.Fatalf("Expected validation error")
	}
}
