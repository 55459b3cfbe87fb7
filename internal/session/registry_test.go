package session

import (
	"sync"
	"testing"
	"time"
)

func newSession(id string) *Session {
	now := time.Unix(1700000000, 0).UTC()
	return &Session{
		CarrierCallID:  id,
		CampaignID:     "camp-1",
		Phone:          "+15550001111",
		Phase:          PhaseRinging,
		ExtractedData:  map[string]string{},
		StartedAt:      now,
		LastActivityAt: now,
	}
}

func TestPutGetRemove(t *testing.T) {
	r := NewRegistry()

	if got := r.Get("CA1"); got != nil {
		t.Fatalf("expected nil for unknown id, got %+v", got)
	}

	r.Put(newSession("CA1"))
	if got := r.Get("CA1"); got == nil || got.CampaignID != "camp-1" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if r.Len() != 1 {
		t.Fatalf("len = %d, want 1", r.Len())
	}

	r.Remove("CA1")
	if r.Get("CA1") != nil {
		t.Fatalf("expected session gone after remove")
	}

	// Removing again must be a no-op.
	r.Remove("CA1")
	if r.Len() != 0 {
		t.Fatalf("len = %d, want 0", r.Len())
	}
}

func TestPerIDLockSerializesMutation(t *testing.T) {
	r := NewRegistry()
	r.Put(newSession("CA1"))

	const workers = 20
	const perWorker = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				r.Lock("CA1")
				s := r.Get("CA1")
				s.RePrompts++
				r.Unlock("CA1")
			}
		}()
	}
	wg.Wait()

	if got := r.Get("CA1").RePrompts; got != workers*perWorker {
		t.Fatalf("lost updates: got %d, want %d", got, workers*perWorker)
	}
}

func TestLockBeforeSessionExists(t *testing.T) {
	r := NewRegistry()

	// The reconstruction path locks an id that has no session yet.
	r.Lock("CA-new")
	if r.Get("CA-new") != nil {
		t.Fatalf("expected no session")
	}
	r.Put(newSession("CA-new"))
	r.Unlock("CA-new")

	if r.Get("CA-new") == nil {
		t.Fatalf("expected session after put")
	}
}

func TestUnlockAfterRemoveWakesWaiter(t *testing.T) {
	r := NewRegistry()
	r.Put(newSession("CA1"))

	r.Lock("CA1")

	woken := make(chan *Session)
	go func() {
		r.Lock("CA1")
		s := r.Get("CA1")
		r.Unlock("CA1")
		woken <- s
	}()

	// Give the waiter time to block inside Lock before finalizing.
	time.Sleep(20 * time.Millisecond)

	// Finalization order: drop the session first, then release the lock.
	r.Remove("CA1")
	r.Unlock("CA1")

	select {
	case s := <-woken:
		if s != nil {
			t.Fatalf("waiter saw a session after remove: %+v", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("waiter never woke up after Remove+Unlock")
	}
}

func TestSnapshotIsIsolated(t *testing.T) {
	r := NewRegistry()
	s := newSession("CA1")
	s.History = []Turn{{Role: "user", Content: "hello"}}
	s.ExtractedData["email"] = "a@b.com"
	r.Put(s)

	snap := r.Get("CA1").Snapshot()
	snap.History[0].Content = "mutated"
	snap.ExtractedData["email"] = "mutated"

	live := r.Get("CA1")
	if live.History[0].Content != "hello" {
		t.Fatalf("snapshot mutation leaked into history")
	}
	if live.ExtractedData["email"] != "a@b.com" {
		t.Fatalf("snapshot mutation leaked into extracted data")
	}
}

func TestSweepReportsOnlyIdle(t *testing.T) {
	r := NewRegistry()
	now := time.Unix(1700000000, 0).UTC()

	idle := newSession("CA-idle")
	idle.LastActivityAt = now.Add(-20 * time.Minute)
	r.Put(idle)

	fresh := newSession("CA-fresh")
	fresh.LastActivityAt = now.Add(-1 * time.Minute)
	r.Put(fresh)

	// Zero LastActivityAt falls back to StartedAt.
	stale := newSession("CA-stale")
	stale.StartedAt = now.Add(-2 * time.Hour)
	stale.LastActivityAt = time.Time{}
	r.Put(stale)

	ids := r.Sweep(15*time.Minute, now)
	if len(ids) != 2 {
		t.Fatalf("swept %v, want CA-idle and CA-stale", ids)
	}
	got := map[string]bool{}
	for _, id := range ids {
		got[id] = true
	}
	if !got["CA-idle"] || !got["CA-stale"] {
		t.Fatalf("swept %v, want CA-idle and CA-stale", ids)
	}

	// Sweep only reports; nothing is removed.
	if r.Len() != 3 {
		t.Fatalf("len = %d, want 3", r.Len())
	}
}

func TestListActiveReturnsCopies(t *testing.T) {
	r := NewRegistry()
	r.Put(newSession("CA1"))
	r.Put(newSession("CA2"))

	list := r.ListActive()
	if len(list) != 2 {
		t.Fatalf("got %d sessions, want 2", len(list))
	}
	list[0].CampaignID = "mutated"
	if r.Get("CA1").CampaignID != "camp-1" || r.Get("CA2").CampaignID != "camp-1" {
		t.Fatalf("list mutation leaked into registry")
	}
}
