package messagestore

import "time"

// Restore builds a Store preloaded from a previously saved Snapshot, for
// session resumption (original §6.2 round-trip, property 6).
func Restore(snap Snapshot, inputHistoryCap int, throttle time.Duration, persister Persister) *Store {
	if inputHistoryCap <= 0 {
		inputHistoryCap = 100
	}
	msgs := make([]*Message, len(snap.Messages))
	for i, m := range snap.Messages {
		msgs[i] = copyMessage(m)
	}
	s := &Store{
		session: &Session{
			ID:                snap.ID,
			CreatedAt:         snap.StartedAt,
			LastActiveAt:      snap.LastActiveAt,
			Workdir:           snap.Workdir,
			LatestTotalTokens: snap.LatestTotalTokens,
			Messages:          msgs,
		},
		startedAt:       snap.StartedAt,
		inputHistory:    append([]string(nil), snap.InputHistory...),
		inputHistoryCap: inputHistoryCap,
		throttle:        throttle,
		persister:       persister,
	}
	return s
}
