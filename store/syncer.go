package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vsariola/beatbox"
)

type (
	// Syncer is a bus listener that mirrors the changes made to sessions into
	// repositories. Rules are stored within their player record, so rule
	// commands become saves of the player snapshot they carry.
	//
	// An asynchronous bus may deliver the commands in any order. Syncer
	// remembers the latest revision it has applied to each record and drops
	// commands older than that, so the stored records end up equal to the
	// live ones whatever the delivery order.
	Syncer struct {
		Sessions beatbox.Repository[beatbox.SessionConfig]
		Players  func(sessionID int64) beatbox.Repository[beatbox.Player]
		// Flush, if set, is called after every successful change.
		Flush func() error

		mu       sync.Mutex
		revision map[recordKey]int64
	}

	// recordKey names a stored record; player is 0 for the session itself.
	recordKey struct {
		session, player int64
	}
)

// NewFileSyncer returns a Syncer writing through to f.
func NewFileSyncer(f *File) *Syncer {
	return &Syncer{Sessions: f.Sessions(), Players: f.Players, Flush: f.Flush}
}

func (s *Syncer) OnCommand(cmd beatbox.Command) error {
	if cmd.Kind.IsTiming() {
		return nil // arrives every tick and never changes a record
	}
	applied, err := s.apply(cmd)
	if err != nil {
		return fmt.Errorf("syncing %v failed: %w", cmd.Kind, err)
	}
	if applied && s.Flush != nil {
		return s.Flush()
	}
	return nil
}

func (s *Syncer) apply(cmd beatbox.Command) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch d := cmd.Data.(type) {
	case beatbox.PlayerEvent:
		if !s.advance(recordKey{d.SessionID, d.Player.ID}, d.Revision) {
			return false, nil
		}
		players := s.Players(d.SessionID)
		if cmd.Kind == beatbox.CommandPlayerRemoved {
			if err := players.Delete(d.Player.ID); err != nil && !errors.Is(err, beatbox.ErrNotFound) {
				return false, err
			}
			return true, nil
		}
		_, err := players.Save(d.Player)
		return err == nil, err
	case beatbox.RuleEvent:
		if !s.advance(recordKey{d.SessionID, d.PlayerID}, d.Revision) {
			return false, nil
		}
		_, err := s.Players(d.SessionID).Save(d.Player)
		return err == nil, err
	case beatbox.SessionEvent:
		if !s.advance(recordKey{session: d.Config.ID}, d.Revision) {
			return false, nil
		}
		_, err := s.Sessions.Save(d.Config)
		return err == nil, err
	}
	return false, nil
}

// advance records rev as the latest revision of the record and reports
// whether it is newer than the one applied before. Revision 0 is always
// applied and never recorded.
func (s *Syncer) advance(key recordKey, rev int64) bool {
	if rev == 0 {
		return true
	}
	if s.revision == nil {
		s.revision = make(map[recordKey]int64)
	}
	if rev <= s.revision[key] {
		return false
	}
	s.revision[key] = rev
	return true
}
