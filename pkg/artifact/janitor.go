package artifact

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Janitor deletes artifacts older than ttl. Requests whose caller went away
// leave their files behind; this is what eventually collects them.
type Janitor struct {
	root     string
	ttl      time.Duration
	interval time.Duration
	mirror   Mirror
	log      *logrus.Logger
}

// NewJanitor sweeps root every interval. A non-nil mirror loses its copy of
// every expired artifact as well.
func NewJanitor(log *logrus.Logger, root string, ttl, interval time.Duration, mirror Mirror) *Janitor {
	return &Janitor{
		root:     root,
		ttl:      ttl,
		interval: interval,
		mirror:   mirror,
		log:      log,
	}
}

func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := j.Sweep(now)
			if err != nil {
				j.log.WithFields(logrus.Fields{
					"root":  j.root,
					"error": err.Error(),
				}).Warn("Artifact sweep failed")
				continue
			}
			if removed > 0 {
				j.log.WithFields(logrus.Fields{
					"root":    j.root,
					"removed": removed,
				}).Info("Expired artifacts removed")
			}
		}
	}
}

// Sweep removes every regular file in root last modified before now-ttl and
// reports how many were removed.
func (j *Janitor) Sweep(now time.Time) (int, error) {
	entries, err := os.ReadDir(j.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := now.Add(-j.ttl)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.root, entry.Name())); err != nil && !os.IsNotExist(err) {
			j.log.WithFields(logrus.Fields{
				"artifact": entry.Name(),
				"error":    err.Error(),
			}).Warn("Failed to remove expired artifact")
			continue
		}
		unmirror(j.log, j.mirror, entry.Name())
		removed++
	}
	return removed, nil
}
