// Package devhost is an in-process reference Host implementation for
// running demos and integration tests without a real operator UI. It
// logs via logrus (grounded on firestige-Otus's logrusLogger wrapper)
// and, if configured, archives Recordable series through an
// internal/persist.Archiver — optional and entirely host-side, so the
// engine's "writes only through the log sink" invariant is untouched.
package devhost

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"fluidctl/internal/host"
	"fluidctl/internal/persist"
)

// DevHost is a reference Host backed by an in-memory setpoint/recordable
// registry, a logrus logger, and an optional archiver.
type DevHost struct {
	log     *logrus.Logger
	archive persist.Archiver
	labMode bool

	mu         sync.Mutex
	setpoints  map[string]*host.Setpoint[any]
	recordables map[string]*host.Recordable
	prompts    []*host.Prompt
}

// New builds a DevHost. archiver may be nil (no archival).
func New(logger *logrus.Logger, archiver persist.Archiver, labMode bool) *DevHost {
	if logger == nil {
		logger = logrus.New()
	}
	return &DevHost{
		log:         logger,
		archive:     archiver,
		labMode:     labMode,
		setpoints:   make(map[string]*host.Setpoint[any]),
		recordables: make(map[string]*host.Recordable),
	}
}

func (d *DevHost) Setpoint(name string, initial any, dtype host.DType) *host.Setpoint[any] {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sp, ok := d.setpoints[name]; ok {
		return sp
	}
	sp := host.NewSetpoint(name, initial, func(s *host.Setpoint[any]) {
		d.log.WithField("setpoint", name).Debugf("setpoint changed: %v", s.Get())
	})
	d.setpoints[name] = sp
	return sp
}

func (d *DevHost) Recordable(name string, initial any, dtype host.DType) *host.Recordable {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.recordables[name]; ok {
		return r
	}
	r := host.NewRecordable(name, initial, dtype, d.archiveSample)
	d.recordables[name] = r
	return r
}

func (d *DevHost) archiveSample(name string, value any) {
	if d.archive == nil {
		return
	}
	v, ok := toFloat(value)
	if !ok {
		return
	}
	sample := persist.Sample{
		Name:     name,
		Value:    v,
		TimeNano: 0,
		CommitID: persist.NewCommitID(),
	}
	if err := d.archive.ArchiveBatch(context.Background(), []persist.Sample{sample}); err != nil {
		d.log.WithError(err).WithField("recordable", name).Warn("archive failed")
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func (d *DevHost) Input(ctx context.Context, message string, kind host.InputKind, dtype host.DType, options ...string) (*host.Input, error) {
	done := make(chan struct{})
	close(done) // reference host answers immediately with the zero value; a real UI would block
	return &host.Input{Message: message, Kind: kind, DType: dtype, Options: options, Done: done}, nil
}

func (d *DevHost) Prompt(message string, pauseRecipe bool) *host.Prompt {
	p := host.NewPrompt(message, pauseRecipe)
	d.mu.Lock()
	d.prompts = append(d.prompts, p)
	d.mu.Unlock()
	d.log.WithField("pause_recipe", pauseRecipe).Info(message)
	return p
}

func (d *DevHost) Log(line string) {
	d.log.Info(line)
}

func (d *DevHost) Error(line string) {
	d.log.Error(line)
}

func (d *DevHost) IsLabMode() bool { return d.labMode }

func (d *DevHost) SetLogFileName(name string) {
	d.log.WithField("log_file", name).Info(fmt.Sprintf("log file requested: %s", name))
}
