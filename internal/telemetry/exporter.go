package telemetry

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fluidctl/internal/clock"
)

// Exporter periodically logs a one-line activity summary, grounded on
// the teacher's churn.exporterLoop (ticker + stop channel), but driven
// by the injected Clock instead of time.NewTicker so it can be tested
// without sleeping, and logging through logrus instead of fmt.Printf.
type Exporter struct {
	clk      clock.Clock
	log      *logrus.Logger
	interval time.Duration
	summary  func() logrus.Fields

	mu       sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  bool
}

// NewExporter builds an exporter that calls summary() once per interval
// and logs the resulting fields at Info level.
func NewExporter(clk clock.Clock, log *logrus.Logger, interval time.Duration, summary func() logrus.Fields) *Exporter {
	return &Exporter{clk: clk, log: log, interval: interval, summary: summary, stopChan: make(chan struct{})}
}

// Start launches the export loop in a background goroutine.
func (e *Exporter) Start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := e.clk.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				e.publish()
			case <-e.stopChan:
				return
			}
		}
	}()
}

// Stop signals the export loop to exit and waits for it to finish.
func (e *Exporter) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.stopChan)
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Exporter) publish() {
	fields := e.summary()
	e.log.WithFields(fields).Info("runner activity summary")
}
