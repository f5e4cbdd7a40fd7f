// Package store implements SessionStore: throttled JSON-file snapshotting
// of a MessageStore, keyed by session id, with restore and cleanup.
//
// The teacher persists sessions in SQLite (its internal/store/session.go).
// This is a deliberate redesign, not a dropped feature: original spec
// §4.2/§6.2 require one JSON file per session with a fixed schema and an
// atomic-write discipline. Each save is one temp-file write plus rename;
// a failed save is not retried. The SQLite storage medium is not kept.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/agentcore/internal/messagestore"
)

const schemaVersion = "1"

// DefaultExpiryDays is "older than N days of no activity", per original §4.2.
const DefaultExpiryDays = 30

// ErrNotFound is returned by Load and Latest when no matching session exists.
var ErrNotFound = fmt.Errorf("session not found")

// SessionStore persists MessageStore snapshots as one JSON file per session
// in dir, named session_<first-8-chars-of-id>.json.
type SessionStore struct {
	dir string
}

// Open resolves dir (creating it if missing) and returns a SessionStore.
// Absolute paths are resolved once here, per original §4.2.
func Open(dir string) (*SessionStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving session dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0750); err != nil {
		return nil, fmt.Errorf("creating session dir: %w", err)
	}
	return &SessionStore{dir: abs}, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (s *SessionStore) pathFor(id string) string {
	return filepath.Join(s.dir, "session_"+shortID(id)+".json")
}

type stateDoc struct {
	Messages     []*messagestore.Message `json:"messages"`
	InputHistory []string                `json:"inputHistory"`
}

type metadataDoc struct {
	Workdir           string `json:"workdir"`
	StartedAt         string `json:"startedAt"`
	LastActiveAt      string `json:"lastActiveAt"`
	LatestTotalTokens int    `json:"latestTotalTokens"`
}

// fileDoc mirrors the on-disk schema from original §6.2. extra/extraMeta
// preserve any future fields this version of the code doesn't know about,
// so they survive a load-then-save round trip unchanged.
type fileDoc struct {
	ID        string
	Timestamp string
	Version   string
	State     stateDoc
	Metadata  metadataDoc

	extra     map[string]json.RawMessage
	extraMeta map[string]json.RawMessage
}

func (d *fileDoc) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	known := map[string]bool{"id": true, "timestamp": true, "version": true, "state": true, "metadata": true}
	d.extra = map[string]json.RawMessage{}
	for k, v := range raw {
		if !known[k] {
			d.extra[k] = v
			continue
		}
		switch k {
		case "id":
			_ = json.Unmarshal(v, &d.ID)
		case "timestamp":
			_ = json.Unmarshal(v, &d.Timestamp)
		case "version":
			_ = json.Unmarshal(v, &d.Version)
		case "state":
			_ = json.Unmarshal(v, &d.State)
		case "metadata":
			metaRaw := map[string]json.RawMessage{}
			if err := json.Unmarshal(v, &metaRaw); err == nil {
				metaKnown := map[string]bool{"workdir": true, "startedAt": true, "lastActiveAt": true, "latestTotalTokens": true}
				d.extraMeta = map[string]json.RawMessage{}
				for mk, mv := range metaRaw {
					if !metaKnown[mk] {
						d.extraMeta[mk] = mv
						continue
					}
					switch mk {
					case "workdir":
						_ = json.Unmarshal(mv, &d.Metadata.Workdir)
					case "startedAt":
						_ = json.Unmarshal(mv, &d.Metadata.StartedAt)
					case "lastActiveAt":
						_ = json.Unmarshal(mv, &d.Metadata.LastActiveAt)
					case "latestTotalTokens":
						_ = json.Unmarshal(mv, &d.Metadata.LatestTotalTokens)
					}
				}
			}
		}
	}
	return nil
}

func (d *fileDoc) MarshalJSON() ([]byte, error) {
	mustMarshal := func(v any) json.RawMessage {
		b, _ := json.Marshal(v)
		return b
	}

	out := map[string]json.RawMessage{}
	for k, v := range d.extra {
		out[k] = v
	}
	out["id"] = mustMarshal(d.ID)
	out["timestamp"] = mustMarshal(d.Timestamp)
	out["version"] = mustMarshal(d.Version)
	out["state"] = mustMarshal(d.State)

	meta := map[string]json.RawMessage{}
	for k, v := range d.extraMeta {
		meta[k] = v
	}
	meta["workdir"] = mustMarshal(d.Metadata.Workdir)
	meta["startedAt"] = mustMarshal(d.Metadata.StartedAt)
	meta["lastActiveAt"] = mustMarshal(d.Metadata.LastActiveAt)
	meta["latestTotalTokens"] = mustMarshal(d.Metadata.LatestTotalTokens)
	out["metadata"] = mustMarshal(meta)

	return json.Marshal(out)
}

func toDoc(snap messagestore.Snapshot) *fileDoc {
	return &fileDoc{
		ID:        snap.ID,
		Timestamp: snap.Timestamp.UTC().Format(time.RFC3339),
		Version:   schemaVersion,
		State: stateDoc{
			Messages:     snap.Messages,
			InputHistory: snap.InputHistory,
		},
		Metadata: metadataDoc{
			Workdir:           snap.Workdir,
			StartedAt:         snap.StartedAt.UTC().Format(time.RFC3339),
			LastActiveAt:      snap.LastActiveAt.UTC().Format(time.RFC3339),
			LatestTotalTokens: snap.LatestTotalTokens,
		},
	}
}

func fromDoc(d *fileDoc) messagestore.Snapshot {
	startedAt, _ := time.Parse(time.RFC3339, d.Metadata.StartedAt)
	lastActiveAt, _ := time.Parse(time.RFC3339, d.Metadata.LastActiveAt)
	ts, _ := time.Parse(time.RFC3339, d.Timestamp)
	return messagestore.Snapshot{
		ID:                d.ID,
		Timestamp:         ts,
		Messages:          d.State.Messages,
		InputHistory:      d.State.InputHistory,
		Workdir:           d.Metadata.Workdir,
		StartedAt:         startedAt,
		LastActiveAt:      lastActiveAt,
		LatestTotalTokens: d.Metadata.LatestTotalTokens,
	}
}

// Save atomically writes one session file: write to a sibling temp file,
// then rename, per the concurrency model in original §5. Save implements
// messagestore.Persister.
func (s *SessionStore) Save(snap messagestore.Snapshot) error {
	doc := toDoc(snap)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	final := s.pathFor(snap.ID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("rename session file: %w", err)
	}
	return nil
}

// Load reads the session file for id.
func (s *SessionStore) Load(id string) (messagestore.Snapshot, error) {
	data, err := os.ReadFile(s.pathFor(id))
	if os.IsNotExist(err) {
		return messagestore.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return messagestore.Snapshot{}, fmt.Errorf("read session file: %w", err)
	}
	var doc fileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return messagestore.Snapshot{}, fmt.Errorf("parse session file: %w", err)
	}
	return fromDoc(&doc), nil
}

// Latest returns the most-recently-modified session whose metadata.workdir
// equals workdir.
func (s *SessionStore) Latest(workdir string) (messagestore.Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return messagestore.Snapshot{}, fmt.Errorf("list session dir: %w", err)
	}
	type candidate struct {
		snap    messagestore.Snapshot
		modTime time.Time
	}
	var best *candidate
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var doc fileDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			continue
		}
		if doc.Metadata.Workdir != workdir {
			continue
		}
		if best == nil || info.ModTime().After(best.modTime) {
			best = &candidate{snap: fromDoc(&doc), modTime: info.ModTime()}
		}
	}
	if best == nil {
		return messagestore.Snapshot{}, ErrNotFound
	}
	return best.snap, nil
}

// SessionInfo is a lightweight listing entry.
type SessionInfo struct {
	ID           string
	Workdir      string
	LastActiveAt time.Time
}

// List returns all known sessions, most recently active first.
func (s *SessionStore) List() ([]SessionInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list session dir: %w", err)
	}
	var out []SessionInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var doc fileDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			continue
		}
		lastActive, _ := time.Parse(time.RFC3339, doc.Metadata.LastActiveAt)
		out = append(out, SessionInfo{ID: doc.ID, Workdir: doc.Metadata.Workdir, LastActiveAt: lastActive})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActiveAt.After(out[j].LastActiveAt) })
	return out, nil
}

// Delete removes the session file for id. Missing files are not an error.
func (s *SessionStore) Delete(id string) error {
	err := os.Remove(s.pathFor(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete session file: %w", err)
	}
	return nil
}

// CleanupExpired deletes sessions whose lastActiveAt is older than
// maxAgeDays (DefaultExpiryDays if <= 0). Failures on individual files are
// logged and skipped rather than aborting the sweep.
func (s *SessionStore) CleanupExpired(maxAgeDays int) (int, error) {
	if maxAgeDays <= 0 {
		maxAgeDays = DefaultExpiryDays
	}
	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	infos, err := s.List()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, info := range infos {
		if info.LastActiveAt.Before(cutoff) {
			if err := s.Delete(info.ID); err != nil {
				log.Warn().Err(err).Str("session", info.ID).Msg("cleanup: failed to delete expired session")
				continue
			}
			n++
		}
	}
	return n, nil
}
