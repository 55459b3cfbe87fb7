package audio

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"
)

func testCleaner() *Cleaner {
	return NewCleaner(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSweepDeletesOnlyExpired(t *testing.T) {
	c := testCleaner()
	now := time.Unix(1700000000, 0)
	c.clock = func() time.Time { return now }

	var removed []string
	c.removeFile = func(path string) error {
		removed = append(removed, path)
		return nil
	}

	c.Register("/tmp/a.mp3", time.Minute)
	c.Register("/tmp/b.mp3", time.Hour)

	now = now.Add(2 * time.Minute)
	if n := c.Sweep(); n != 1 {
		t.Fatalf("deleted %d, want 1", n)
	}
	if len(removed) != 1 || removed[0] != "/tmp/a.mp3" {
		t.Fatalf("removed %v, want only /tmp/a.mp3", removed)
	}
	if c.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", c.Pending())
	}
}

func TestSweepMissingFileCountsAsCleaned(t *testing.T) {
	c := testCleaner()
	now := time.Unix(1700000000, 0)
	c.clock = func() time.Time { return now }
	c.removeFile = func(string) error { return os.ErrNotExist }

	c.Register("/tmp/gone.mp3", time.Minute)
	now = now.Add(2 * time.Minute)

	if n := c.Sweep(); n != 1 {
		t.Fatalf("deleted %d, want 1", n)
	}
	if c.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", c.Pending())
	}
}

func TestSweepKeepsEntryOnFailure(t *testing.T) {
	c := testCleaner()
	now := time.Unix(1700000000, 0)
	c.clock = func() time.Time { return now }
	c.removeFile = func(string) error { return errors.New("device busy") }

	c.Register("/tmp/stuck.mp3", time.Minute)
	now = now.Add(2 * time.Minute)

	if n := c.Sweep(); n != 0 {
		t.Fatalf("deleted %d, want 0", n)
	}
	if c.Pending() != 1 {
		t.Fatalf("failed delete must stay registered")
	}
}

func TestReRegisterExtendsDeadline(t *testing.T) {
	c := testCleaner()
	now := time.Unix(1700000000, 0)
	c.clock = func() time.Time { return now }
	c.removeFile = func(string) error { return nil }

	c.Register("/tmp/a.mp3", time.Minute)
	c.Register("/tmp/a.mp3", time.Hour)

	now = now.Add(2 * time.Minute)
	if n := c.Sweep(); n != 0 {
		t.Fatalf("deleted %d, want 0 after extension", n)
	}
}

func TestRegisterIgnoresInvalidInput(t *testing.T) {
	c := testCleaner()
	c.Register("", time.Minute)
	c.Register("/tmp/x.mp3", 0)
	if c.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", c.Pending())
	}
}
