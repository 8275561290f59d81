package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/sitesnap"
	"github.com/root4loot/sitesnap/pkg/config"
)

const usage = `USAGE:
  sitesnap [options] [-i <sites.json>]

INPUT:
  -i,   --input                  work list: JSON array of {"url": ...} or .txt (one per line)  (Default: sites.json)
        --config                 configuration file (.toml, .yaml, .yml)

CONFIGURATIONS:
  -c,   --concurrency            screenshots per wave                                    (Default: 6)
  -en,  --engine                 capture engine (rod, chromedp)                          (Default: rod)
  -to,  --timeout                screenshot timeout (seconds)                            (Default: 30)
  -dc,  --delay-capture          delay before capture (seconds)                          (Default: 5)
  -cw,  --capture-width          viewport width                                          (Default: 800)
  -ch,  --capture-height         viewport height                                         (Default: 1000)
  -sf,  --scale-factor           device scale factor                                     (Default: 1)
  -cf,  --capture-full           capture entire page                                     (Default: false)
  -ua,  --user-agent             specify user agent                                      (Default: Chrome UA)
  -uh,  --use-http2              use HTTP2                                               (Default: false)
  -rce, --respect-cert-err       respect certificate errors                              (Default: false)
  -isc, --ignore-status-codes    treat status codes as failures (comma separated)
  -ad,  --avoid-duplicates       do not save near-identical screenshots                  (Default: false)
  -dt,  --duplicate-threshold    similarity percentage counted as duplicate (1-100)      (Default: 96)

OUTPUT:
  -o,   --outfolder              site output folder                                      (Default: dist)
  -sd,  --shots-dir              screenshot folder inside the output folder              (Default: screenshots)
  -tp,  --template               static site copied into the output folder               (Default: src)
  -g,   --gallery                selector of the gallery element in index.html           (Default: #gallery)
        --ext                    image file extension                                    (Default: .png)
  -iu,  --imprint-url            add the site origin below each screenshot               (Default: false)
        --history                record runs in this SQLite database
  -s,   --silence                silence output
        --debug                  enable debug mode
        --version                display version
`

type cli struct {
	Config            config.Config
	ConfigFile        string
	IgnoreStatusCodes string
	Debug             bool
	Silence           bool
	Help              bool
	Version           bool
}

func init() {
	log.Init("sitesnap")
}

func main() {
	c, err := parseFlags(os.Args[1:])
	if err != nil {
		log.Errorf("%v", err)
		fmt.Print(usage)
		os.Exit(2)
	}

	if c.Help {
		fmt.Print(usage)
		os.Exit(0)
	}

	if c.Version {
		fmt.Println("sitesnap", sitesnap.Version)
		os.Exit(0)
	}

	setLogLevel(c)

	runner, err := sitesnap.NewRunner(c.Config, nil)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if _, err := runner.Run(); err != nil {
		var setupErr *sitesnap.SetupError
		if errors.As(err, &setupErr) {
			log.Fatalf("Could not %s: %v", setupErr.Stage, setupErr.Err)
		}
		log.Fatalf("Unhandled failure: %v", err)
	}

	log.Info("done")
}

func setLogLevel(c *cli) {
	switch {
	case c.Silence:
		log.SetLevel(log.FatalLevel)
	case c.Debug:
		log.SetLevel(log.DebugLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

// parseFlags builds the configuration from defaults, the optional config
// file, the environment and finally the command line.
func parseFlags(args []string) (*cli, error) {
	c := &cli{ConfigFile: configPath(args)}

	c.Config = config.Default()
	if c.ConfigFile != "" {
		loaded, err := config.Load(c.ConfigFile)
		if err != nil {
			return nil, err
		}
		c.Config = loaded
	}
	if err := config.ApplyEnv(&c.Config); err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("sitesnap", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfg := &c.Config
	capture := &c.Config.Capture

	// INPUT
	fs.StringVar(&cfg.Input, "input", cfg.Input, "")
	fs.StringVar(&cfg.Input, "i", cfg.Input, "")
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "")

	// CONFIGURATIONS
	fs.IntVar(&cfg.MaxParallel, "concurrency", cfg.MaxParallel, "")
	fs.IntVar(&cfg.MaxParallel, "c", cfg.MaxParallel, "")
	fs.StringVar(&capture.Engine, "engine", capture.Engine, "")
	fs.StringVar(&capture.Engine, "en", capture.Engine, "")
	fs.IntVar(&capture.Timeout, "timeout", capture.Timeout, "")
	fs.IntVar(&capture.Timeout, "to", capture.Timeout, "")
	fs.IntVar(&capture.DelayBeforeCapture, "delay-capture", capture.DelayBeforeCapture, "")
	fs.IntVar(&capture.DelayBeforeCapture, "dc", capture.DelayBeforeCapture, "")
	fs.IntVar(&capture.CaptureWidth, "capture-width", capture.CaptureWidth, "")
	fs.IntVar(&capture.CaptureWidth, "cw", capture.CaptureWidth, "")
	fs.IntVar(&capture.CaptureHeight, "capture-height", capture.CaptureHeight, "")
	fs.IntVar(&capture.CaptureHeight, "ch", capture.CaptureHeight, "")
	fs.Float64Var(&capture.ScaleFactor, "scale-factor", capture.ScaleFactor, "")
	fs.Float64Var(&capture.ScaleFactor, "sf", capture.ScaleFactor, "")
	fs.BoolVar(&capture.CaptureFull, "capture-full", capture.CaptureFull, "")
	fs.BoolVar(&capture.CaptureFull, "cf", capture.CaptureFull, "")
	fs.StringVar(&capture.UserAgent, "user-agent", capture.UserAgent, "")
	fs.StringVar(&capture.UserAgent, "ua", capture.UserAgent, "")
	fs.BoolVar(&capture.UseHTTP2, "use-http2", capture.UseHTTP2, "")
	fs.BoolVar(&capture.UseHTTP2, "uh", capture.UseHTTP2, "")
	fs.BoolVar(&capture.RespectCertificateErrors, "respect-cert-err", capture.RespectCertificateErrors, "")
	fs.BoolVar(&capture.RespectCertificateErrors, "rce", capture.RespectCertificateErrors, "")
	fs.StringVar(&c.IgnoreStatusCodes, "ignore-status-codes", "", "")
	fs.StringVar(&c.IgnoreStatusCodes, "isc", "", "")
	fs.BoolVar(&capture.AvoidDuplicates, "avoid-duplicates", capture.AvoidDuplicates, "")
	fs.BoolVar(&capture.AvoidDuplicates, "ad", capture.AvoidDuplicates, "")
	fs.IntVar(&capture.DuplicateThreshold, "duplicate-threshold", capture.DuplicateThreshold, "")
	fs.IntVar(&capture.DuplicateThreshold, "dt", capture.DuplicateThreshold, "")

	// OUTPUT
	fs.StringVar(&cfg.OutDir, "outfolder", cfg.OutDir, "")
	fs.StringVar(&cfg.OutDir, "o", cfg.OutDir, "")
	fs.StringVar(&cfg.ShotsDir, "shots-dir", cfg.ShotsDir, "")
	fs.StringVar(&cfg.ShotsDir, "sd", cfg.ShotsDir, "")
	fs.StringVar(&cfg.TemplateDir, "template", cfg.TemplateDir, "")
	fs.StringVar(&cfg.TemplateDir, "tp", cfg.TemplateDir, "")
	fs.StringVar(&cfg.Gallery, "gallery", cfg.Gallery, "")
	fs.StringVar(&cfg.Gallery, "g", cfg.Gallery, "")
	fs.StringVar(&cfg.Ext, "ext", cfg.Ext, "")
	fs.BoolVar(&capture.ImprintURL, "imprint-url", capture.ImprintURL, "")
	fs.BoolVar(&capture.ImprintURL, "iu", capture.ImprintURL, "")
	fs.StringVar(&cfg.HistoryDB, "history", cfg.HistoryDB, "")
	fs.BoolVar(&c.Silence, "silence", false, "")
	fs.BoolVar(&c.Silence, "s", false, "")
	fs.BoolVar(&c.Debug, "debug", false, "")
	fs.BoolVar(&c.Help, "help", false, "")
	fs.BoolVar(&c.Help, "h", false, "")
	fs.BoolVar(&c.Version, "version", false, "")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.Help = true
			return c, nil
		}
		return nil, err
	}

	if c.IgnoreStatusCodes != "" {
		capture.IgnoreStatusCodes = nil
		for _, code := range strings.Split(c.IgnoreStatusCodes, ",") {
			statusCode, err := strconv.Atoi(strings.TrimSpace(code))
			if err != nil {
				return nil, fmt.Errorf("invalid status code: %s", code)
			}
			capture.IgnoreStatusCodes = append(capture.IgnoreStatusCodes, statusCode)
		}
	}

	return c, nil
}

// configPath finds the --config value before the other flags are parsed so
// that the file can provide their defaults.
func configPath(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		name := strings.TrimLeft(arg, "-")
		if name == arg {
			continue
		}
		if value, ok := strings.CutPrefix(name, "config="); ok {
			return value
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
