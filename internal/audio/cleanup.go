package audio

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Cleaner tracks ephemeral generated audio files (TTS output served to the
// carrier) and deletes them after their deadline on a scheduled sweep.
//
// This replaces ad-hoc delayed-delete callbacks: registration is cheap and
// happens on the request path, deletion happens on the sweep, and a failed
// delete stays registered and is logged instead of being lost.
type Cleaner struct {
	mu        sync.Mutex
	deadlines map[string]time.Time

	log   *slog.Logger
	clock func() time.Time

	cron *cron.Cron

	// removeFile is swapped in tests.
	removeFile func(path string) error
}

func NewCleaner(log *slog.Logger) *Cleaner {
	return &Cleaner{
		deadlines:  map[string]time.Time{},
		log:        log,
		clock:      time.Now,
		removeFile: os.Remove,
	}
}

// Register schedules path for deletion once ttl elapses. Re-registering an
// already tracked path extends its deadline.
func (c *Cleaner) Register(path string, ttl time.Duration) {
	if path == "" || ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadlines[path] = c.clock().Add(ttl)
}

// Sweep deletes every expired file. Missing files count as cleaned;
// any other delete failure keeps the entry for the next sweep and is
// logged for the operator.
func (c *Cleaner) Sweep() (deleted int) {
	now := c.clock()

	c.mu.Lock()
	var due []string
	for path, deadline := range c.deadlines {
		if !deadline.After(now) {
			due = append(due, path)
		}
	}
	c.mu.Unlock()

	for _, path := range due {
		err := c.removeFile(path)
		if err != nil && !os.IsNotExist(err) {
			c.log.Error("audio cleanup failed", "path", path, "err", err)
			continue
		}
		deleted++
		c.mu.Lock()
		delete(c.deadlines, path)
		c.mu.Unlock()
	}
	return deleted
}

// Pending reports how many files are awaiting deletion.
func (c *Cleaner) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deadlines)
}

// Start runs the sweep every minute until Stop is called.
func (c *Cleaner) Start() error {
	if c.cron != nil {
		return nil
	}
	c.cron = cron.New()
	if _, err := c.cron.AddFunc("* * * * *", func() {
		if n := c.Sweep(); n > 0 {
			c.log.Debug("audio cleanup sweep", "deleted", n)
		}
	}); err != nil {
		c.cron = nil
		return err
	}
	c.cron.Start()
	return nil
}

func (c *Cleaner) Stop() {
	if c.cron == nil {
		return
	}
	c.cron.Stop()
	c.cron = nil
}
