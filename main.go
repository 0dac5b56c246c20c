package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path"
	"sync/atomic"
	"syscall"

	"github.com/luispater/webtest/internal/browser"
	"github.com/luispater/webtest/internal/config"
	"github.com/luispater/webtest/internal/driver"
	"github.com/luispater/webtest/internal/runner"
	"github.com/luispater/webtest/internal/sauce"
	"github.com/luispater/webtest/internal/target"
	"github.com/luispater/webtest/internal/utils"
	"github.com/luispater/webtest/internal/webdriver"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type LogFormatter struct {
}

func (m *LogFormatter) Format(entry *log.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	timestamp := entry.Time.Format("2006-01-02 15:04:05")
	var newLog string
	if entry.HasCaller() {
		newLog = fmt.Sprintf("[%s] [%s] [%s:%d] %s\n", timestamp, entry.Level, path.Base(entry.Caller.File), entry.Caller.Line, entry.Message)
	} else {
		newLog = fmt.Sprintf("[%s] [%s] %s\n", timestamp, entry.Level, entry.Message)
	}

	b.WriteString(newLog)
	return b.Bytes(), nil
}

func init() {
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
	log.SetReportCaller(true)
	log.SetFormatter(&LogFormatter{})
}

func main() {
	cfg, err := config.LoadConfig(config.Path())
	if err != nil {
		log.Fatalf("Load configuration error: %v", err)
		return
	}
	if !cfg.Debug {
		log.SetLevel(log.InfoLevel)
	}

	b := cfg.BrowserType()
	if !cfg.Remote && b != webdriver.Chrome {
		if err = browser.InstallBrowsers(cfg.Debug, b); err != nil {
			log.Fatalf("Install playwright failed: %v", err)
			return
		}
	}

	d := driver.New(func(test string) (driver.Target, error) {
		t, errNew := target.New(cfg, test)
		if errNew != nil {
			return nil, errNew
		}
		return t, nil
	}, sauce.NewClient(cfg.Grid))

	queue := utils.NewQueue[check]()
	for _, u := range cfg.Smoke.URLs {
		queue.Enqueue(check{url: u})
	}
	var scenarios *runner.RunnerManager
	if cfg.Smoke.Scenarios != "" {
		scenarios, err = runner.NewRunnerManager(d, cfg.Smoke.Scenarios)
		if err != nil {
			log.Fatalf("Load scenarios error: %v", err)
			return
		}
		for _, name := range scenarios.Names() {
			queue.Enqueue(check{scenario: name})
		}
	}
	queue.Close()

	if queue.Size() == 0 {
		log.Info("No smoke urls or scenarios configured, nothing to do.")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workers := max(cfg.Smoke.Workers, 1)
	log.Infof("Running %d smoke checks on %s with %d workers...", queue.Size(), b, workers)

	failed, errRun := runChecks(ctx, queue, workers, func(ctx context.Context, c check) error {
		if c.scenario != "" {
			return scenarios.Run(ctx, c.scenario)
		}
		return smoke(ctx, d, c.url)
	})
	if failed > 0 {
		stop()
		log.Fatalf("%d smoke checks failed.", failed)
		return
	}
	if errRun != nil {
		log.Warnf("Smoke run interrupted with %d checks left: %v", queue.Size(), errRun)
		return
	}
	log.Info("All smoke checks passed.")
}

// check is either a url to load or a scenario to run.
type check struct {
	url      string
	scenario string
}

func (c check) String() string {
	if c.scenario != "" {
		return "scenario " + c.scenario
	}
	return c.url
}

// runChecks drains queue with workers goroutines and returns the number of
// failed checks. Once ctx is done no further check starts, and a check that
// fails because of the cancellation is not counted.
func runChecks(ctx context.Context, queue *utils.Queue[check], workers int, run func(context.Context, check) error) (int32, error) {
	var failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				c, errDequeue := queue.Dequeue(gctx)
				if errors.Is(errDequeue, utils.ErrQueueClosed) {
					return nil
				}
				if errDequeue != nil {
					return errDequeue
				}
				if errCheck := run(gctx, c); errCheck != nil {
					if errCtx := gctx.Err(); errCtx != nil {
						log.Debugf("Smoke check %s interrupted: %v", c, errCheck)
						return errCtx
					}
					log.Errorf("Smoke check %s failed: %v", c, errCheck)
					failed.Add(1)
				}
			}
		})
	}
	err := g.Wait()
	return failed.Load(), err
}

// smoke opens one session, loads u and logs the page title.
func smoke(ctx context.Context, d *driver.Driver, u string) error {
	return d.Run(ctx, "Smoke "+u, "", func(ctx context.Context) error {
		if err := d.Get(ctx, u); err != nil {
			return err
		}
		title, err := d.Title(ctx)
		if err != nil {
			return err
		}
		if title == "" {
			return fmt.Errorf("page %s has no title", u)
		}

		jobURL, _ := d.JobURL(ctx)
		if jobURL != "" {
			log.Infof("%s: %q (%s)", u, title, jobURL)
		} else {
			log.Infof("%s: %q", u, title)
		}
		return nil
	})
}
