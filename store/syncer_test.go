package store_test

import (
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/vsariola/beatbox"
	"github.com/vsariola/beatbox/engine"
	"github.com/vsariola/beatbox/store"
)

func TestSyncerMirrorsSessionChanges(t *testing.T) {
	f, err := store.Open(filepath.Join(t.TempDir(), "live.yml"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	bus := engine.NewBus(engine.BusOptions{})
	bus.Register(store.NewFileSyncer(f))
	s, err := engine.NewSession(engine.Context{Bus: bus}, beatbox.SessionConfig{ID: 3, BPM: 100, TicksPerBeat: 4, BeatsPerBar: 4, Bars: 1, Parts: 1})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	p, err := s.AddPlayer(beatbox.Player{Note: 38, MaxVelocity: 127, Probability: 100})
	if err != nil {
		t.Fatalf("AddPlayer failed: %v", err)
	}
	r, err := s.AddRule(p.ID, beatbox.Rule{Operator: beatbox.OperatorBeat, Comparison: beatbox.Modulo, Value: 2})
	if err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}
	players := f.Players(3)
	stored, err := players.FindByID(p.ID)
	if err != nil {
		t.Fatalf("player was not saved: %v", err)
	}
	if len(stored.Rules) != 1 || stored.Rules[0] != r {
		t.Errorf("stored rules %+v, expected [%+v]", stored.Rules, r)
	}
	if err := s.RemoveRule(p.ID, r.ID); err != nil {
		t.Fatalf("RemoveRule failed: %v", err)
	}
	if stored, _ = players.FindByID(p.ID); len(stored.Rules) != 0 {
		t.Errorf("removed rule still stored: %+v", stored.Rules)
	}
	if err := s.SetBPM(140); err != nil {
		t.Fatalf("SetBPM failed: %v", err)
	}
	if cfg, err := f.Sessions().FindByID(3); err != nil || cfg.BPM != 140 {
		t.Errorf("stored session %+v, %v", cfg, err)
	}
	if err := s.RemovePlayer(p.ID); err != nil {
		t.Fatalf("RemovePlayer failed: %v", err)
	}
	if _, err := players.FindByID(p.ID); err == nil {
		t.Errorf("removed player still stored")
	}
	reopened, err := store.Open(f.Path())
	if err != nil {
		t.Fatalf("reopening failed: %v", err)
	}
	if doc := reopened.Document(); len(doc.Sessions) != 1 || doc.Sessions[0].BPM != 140 {
		t.Errorf("flushed document %+v", doc)
	}
}

// slowly wraps a repository so that every write takes a random 0-400µs, like
// a repository backed by a disk or a network.
func slowly[T any](r beatbox.Repository[T]) beatbox.Repository[T] {
	save, del := r.Save, r.Delete
	r.Save = func(record T) (T, error) {
		time.Sleep(time.Duration(rand.IntN(400)) * time.Microsecond)
		return save(record)
	}
	r.Delete = func(id int64) error {
		time.Sleep(time.Duration(rand.IntN(400)) * time.Microsecond)
		return del(id)
	}
	return r
}

func TestSyncerConvergesOnAsyncBus(t *testing.T) {
	for trial := 0; trial < 20; trial++ {
		bus := engine.NewBus(engine.BusOptions{Workers: 4})
		sessions := store.NewSessionTable()
		players := store.NewPlayerTable()
		bus.Register(&store.Syncer{
			Sessions: slowly(sessions.Repository()),
			Players:  func(int64) beatbox.Repository[beatbox.Player] { return slowly(players.Repository()) },
		})
		s, err := engine.NewSession(engine.Context{Bus: bus}, beatbox.SessionConfig{ID: 1, BPM: 100, TicksPerBeat: 4, BeatsPerBar: 4, Bars: 1, Parts: 1})
		if err != nil {
			t.Fatalf("NewSession failed: %v", err)
		}
		p, err := s.AddPlayer(beatbox.Player{Note: 36, MaxVelocity: 127, Probability: 100})
		if err != nil {
			t.Fatalf("AddPlayer failed: %v", err)
		}
		gone, err := s.AddPlayer(beatbox.Player{Note: 42, MaxVelocity: 127})
		if err != nil {
			t.Fatalf("AddPlayer failed: %v", err)
		}
		for i := 0; i < 20; i++ {
			if i%4 == 0 {
				if _, err := s.AddRule(p.ID, beatbox.Rule{Operator: beatbox.OperatorTick, Comparison: beatbox.Equals, Value: float64(i / 4)}); err != nil {
					t.Fatalf("AddRule failed: %v", err)
				}
			}
			if err := s.SetMuted(p.ID, i%2 == 0); err != nil {
				t.Fatalf("SetMuted failed: %v", err)
			}
			if err := s.SetBPM(float64(100 + i)); err != nil {
				t.Fatalf("SetBPM failed: %v", err)
			}
		}
		if err := s.RemoveRule(p.ID, 1); err != nil {
			t.Fatalf("RemoveRule failed: %v", err)
		}
		if err := s.RemovePlayer(gone.ID); err != nil {
			t.Fatalf("RemovePlayer failed: %v", err)
		}
		if err := bus.Shutdown(5 * time.Second); err != nil {
			t.Fatalf("Shutdown failed: %v", err)
		}
		if n := bus.Dropped(); n != 0 {
			t.Fatalf("bus dropped %d commands", n)
		}
		live, _ := s.Player(p.ID)
		stored, err := players.FindByID(p.ID)
		if err != nil {
			t.Fatalf("trial %d: player was not saved: %v", trial, err)
		}
		if stored.Muted != live.Muted || len(stored.Rules) != len(live.Rules) {
			t.Fatalf("trial %d: stored player %+v, live player %+v", trial, stored, live)
		}
		for i := range live.Rules {
			if stored.Rules[i] != live.Rules[i] {
				t.Errorf("trial %d: stored rule %d is %+v, expected %+v", trial, i, stored.Rules[i], live.Rules[i])
			}
		}
		if _, err := players.FindByID(gone.ID); err == nil {
			t.Errorf("trial %d: removed player still stored", trial)
		}
		if cfg, err := sessions.FindByID(1); err != nil || cfg.BPM != s.Config().BPM {
			t.Errorf("trial %d: stored session %+v, %v; expected bpm %v", trial, cfg, err, s.Config().BPM)
		}
	}
}

func TestSyncerDropsStaleRevisions(t *testing.T) {
	players := store.NewPlayerTable()
	syncer := &store.Syncer{
		Sessions: store.NewSessionTable().Repository(),
		Players:  func(int64) beatbox.Repository[beatbox.Player] { return players.Repository() },
	}
	deliver := func(kind beatbox.CommandKind, data beatbox.Payload) {
		cmd, err := beatbox.NewCommand(kind, nil, data)
		if err != nil {
			t.Fatalf("NewCommand failed: %v", err)
		}
		if err := syncer.OnCommand(cmd); err != nil {
			t.Fatalf("OnCommand failed: %v", err)
		}
	}
	rule := beatbox.Rule{ID: 1, Operator: beatbox.OperatorBeat, Comparison: beatbox.Equals}
	withRule := beatbox.Player{ID: 2, Probability: 100, Rules: []beatbox.Rule{rule}}
	// the rule arrives before the player it was added to
	deliver(beatbox.CommandRuleAdded, beatbox.RuleEvent{SessionID: 1, Revision: 2, PlayerID: 2, Rule: rule, Player: withRule})
	deliver(beatbox.CommandPlayerAdded, beatbox.PlayerEvent{SessionID: 1, Revision: 1, Player: beatbox.Player{ID: 2, Probability: 100}})
	if stored, err := players.FindByID(2); err != nil || len(stored.Rules) != 1 {
		t.Errorf("stored player %+v, %v; expected one rule", stored, err)
	}
	// a removal makes any older save stale
	deliver(beatbox.CommandPlayerRemoved, beatbox.PlayerEvent{SessionID: 1, Revision: 4, Player: withRule})
	deliver(beatbox.CommandPlayerUpdated, beatbox.PlayerEvent{SessionID: 1, Revision: 3, Player: withRule})
	if _, err := players.FindByID(2); err == nil {
		t.Errorf("player saved after its removal")
	}
}

func TestSyncerIgnoresTimingCommands(t *testing.T) {
	flushes := 0
	syncer := &store.Syncer{
		Sessions: store.NewSessionTable().Repository(),
		Players:  func(int64) beatbox.Repository[beatbox.Player] { return store.NewPlayerTable().Repository() },
		Flush:    func() error { flushes++; return nil },
	}
	for k := beatbox.CommandTickAdvanced; k <= beatbox.CommandPartAdvanced; k++ {
		cmd, err := beatbox.NewCommand(k, nil, beatbox.Position{}.Update())
		if err != nil {
			t.Fatalf("NewCommand failed: %v", err)
		}
		if err := syncer.OnCommand(cmd); err != nil {
			t.Errorf("OnCommand(%v) failed: %v", k, err)
		}
	}
	cmd, _ := beatbox.NewCommand(beatbox.CommandSessionUpdated, nil, beatbox.SessionEvent{Revision: 1, Config: beatbox.DefaultSessionConfig()})
	if err := syncer.OnCommand(cmd); err != nil {
		t.Fatalf("OnCommand failed: %v", err)
	}
	if flushes != 1 {
		t.Errorf("flushed %d times, expected once for the session update", flushes)
	}
}
