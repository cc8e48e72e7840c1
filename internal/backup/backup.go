package backup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bowerhall/lantern/internal/logger"
	"github.com/bowerhall/lantern/internal/storage"
)

const (
	prefix     = "sessions/"
	nameFormat = "20060102-150405"
	timeout    = 2 * time.Minute
)

// cronParser is configured for standard 5-field cron expressions
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Snapshotter produces the serialized session state.
type Snapshotter interface {
	Snapshot() ([]byte, error)
}

// Store is the object storage a snapshot is copied to.
type Store interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) error
	List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
	Delete(ctx context.Context, name string) error
}

// Notifier receives backup failures.
type Notifier interface {
	Warn(component, message string, err error)
}

type Runner struct {
	source Snapshotter
	dest   Store
	keep   int
	notify Notifier
	now    func() time.Time
}

// New creates a runner that retains the newest keep snapshots. keep <= 0
// disables pruning. notify may be nil.
func New(source Snapshotter, dest Store, keep int, notify Notifier) *Runner {
	return &Runner{
		source: source,
		dest:   dest,
		keep:   keep,
		notify: notify,
		now:    time.Now,
	}
}

// ObjectName returns the object key for a snapshot taken at t.
func ObjectName(t time.Time) string {
	return prefix + "lantern_" + t.UTC().Format(nameFormat) + ".json"
}

// RunOnce uploads the current snapshot and prunes old ones.
func (r *Runner) RunOnce(ctx context.Context) (string, error) {
	data, err := r.source.Snapshot()
	if err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}

	name := ObjectName(r.now())
	if err := r.dest.Upload(ctx, name, data, "application/json"); err != nil {
		return "", err
	}

	logger.Info("backup uploaded", "name", name, "size", len(data))

	if err := r.prune(ctx); err != nil {
		logger.Warn("backup prune failed", "error", err)
	}

	return name, nil
}

func (r *Runner) prune(ctx context.Context) error {
	if r.keep <= 0 {
		return nil
	}

	objects, err := r.dest.List(ctx, prefix)
	if err != nil {
		return err
	}

	var names []string
	for _, obj := range objects {
		if strings.HasSuffix(obj.Name, ".json") {
			names = append(names, obj.Name)
		}
	}

	if len(names) <= r.keep {
		return nil
	}

	// names are sorted oldest first because the timestamp is fixed-width
	for _, name := range names[:len(names)-r.keep] {
		if err := r.dest.Delete(ctx, name); err != nil {
			return err
		}
		logger.Debug("backup pruned", "name", name)
	}

	return nil
}

// Start schedules RunOnce on a cron expression and returns a stop function
// that waits for a running backup to finish.
func (r *Runner) Start(schedule string) (func(), error) {
	c := cron.New(cron.WithParser(cronParser))

	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if _, err := r.RunOnce(ctx); err != nil {
			logger.Error("backup failed", "error", err)
			if r.notify != nil {
				r.notify.Warn("backup", "snapshot upload failed", err)
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid backup schedule %q: %w", schedule, err)
	}

	c.Start()
	logger.Info("backups scheduled", "schedule", schedule, "keep", r.keep)

	return func() { <-c.Stop().Done() }, nil
}
