// Package registry is the durable map from event id to the threads created for it.
//
// The whole registry is one JSON document rewritten on every mutation with
// write-temp, fsync, rename. Reads never block: they see the last snapshot
// that was successfully saved.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	logx "matchbot/pkg/logx"
)

var (
	ErrHandleSet = errors.New("registry: phase handle already set")
	ErrEmptyID   = errors.New("registry: empty event id")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Phase string

const (
	PhasePre  Phase = "pre"
	PhaseLive Phase = "live"
	PhasePost Phase = "post"
)

// ThreadRecord lists the thread handles created for one event.
// A phase handle is written at most once.
type ThreadRecord struct {
	Slug           string `json:"slug,omitempty"`
	Pre            string `json:"pre,omitempty"`
	Live           string `json:"live,omitempty"`
	Post           string `json:"post,omitempty"`
	StreamOverride string `json:"stream,omitempty"`
}

func (r ThreadRecord) Handle(p Phase) string {
	switch p {
	case PhasePre:
		return r.Pre
	case PhaseLive:
		return r.Live
	case PhasePost:
		return r.Post
	}
	return ""
}

type records = map[string]ThreadRecord

type Registry struct {
	path string
	log  logx.Logger

	mu   sync.Mutex // serializes mutate+save
	snap atomic.Pointer[records]

	// beforeRename runs after the temp file is synced and closed. Tests use it
	// to simulate a crash before the rename.
	beforeRename func(tmp string) error
}

func New(path string, log logx.Logger) *Registry {
	r := &Registry{path: path, log: log.With(logx.String("comp", "registry"))}
	empty := records{}
	r.snap.Store(&empty)
	return r
}

// Open is New followed by Load.
func Open(path string, log logx.Logger) (*Registry, error) {
	r := New(path, log)
	if err := r.Load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) Path() string { return r.path }

// Load replaces the in-memory state with the file contents. A missing file
// is an empty registry.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		empty := records{}
		r.snap.Store(&empty)
		return nil
	}
	if err != nil {
		return fmt.Errorf("registry: read %s: %w", r.path, err)
	}
	m := records{}
	if len(strings.TrimSpace(string(b))) > 0 {
		if err := json.Unmarshal(b, &m); err != nil {
			return fmt.Errorf("registry: parse %s: %w", r.path, err)
		}
	}
	r.snap.Store(&m)
	r.log.Debug("registry loaded", logx.String("path", r.path), logx.Int("records", len(m)))
	return nil
}

func (r *Registry) current() records { return *r.snap.Load() }

// Get returns a copy of the record for id.
func (r *Registry) Get(id string) (ThreadRecord, bool) {
	rec, ok := r.current()[id]
	return rec, ok
}

// All returns a copy of every record.
func (r *Registry) All() map[string]ThreadRecord {
	cur := r.current()
	out := make(map[string]ThreadRecord, len(cur))
	for k, v := range cur {
		out[k] = v
	}
	return out
}

// IDs returns every event id in lexical order.
func (r *Registry) IDs() []string {
	cur := r.current()
	out := make([]string, 0, len(cur))
	for k := range cur {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Upsert applies mutate to the record for id (creating {Slug: slug} when
// absent) and saves the registry.
//
// A mutation that overwrites an existing phase handle fails with ErrHandleSet.
// If mutate or the save fails nothing changes, in memory or on disk. A
// mutation that changes nothing on an existing record is not saved.
func (r *Registry) Upsert(id, slug string, mutate func(*ThreadRecord) error) (ThreadRecord, error) {
	if strings.TrimSpace(id) == "" {
		return ThreadRecord{}, ErrEmptyID
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current()
	before, existed := cur[id]
	if !existed {
		before = ThreadRecord{Slug: slug}
	}
	after := before
	if after.Slug == "" {
		after.Slug = slug
	}
	if mutate != nil {
		if err := mutate(&after); err != nil {
			return before, err
		}
	}
	for _, p := range []Phase{PhasePre, PhaseLive, PhasePost} {
		if old := before.Handle(p); old != "" && after.Handle(p) != old {
			return before, fmt.Errorf("%w: %s %s", ErrHandleSet, id, p)
		}
	}
	if existed && after == before {
		return before, nil
	}

	next := make(records, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[id] = after
	if err := r.save(next); err != nil {
		return before, err
	}
	r.snap.Store(&next)
	return after, nil
}

// SetPhase records handle for phase p.
func (r *Registry) SetPhase(id, slug string, p Phase, handle string) (ThreadRecord, error) {
	return r.Upsert(id, slug, func(rec *ThreadRecord) error {
		switch p {
		case PhasePre:
			rec.Pre = handle
		case PhaseLive:
			rec.Live = handle
		case PhasePost:
			rec.Post = handle
		default:
			return fmt.Errorf("registry: unknown phase %q", p)
		}
		return nil
	})
}

// SetStreamOverride sets or clears the manual stream link for id.
func (r *Registry) SetStreamOverride(id, link string) (ThreadRecord, error) {
	return r.Upsert(id, "", func(rec *ThreadRecord) error {
		rec.StreamOverride = strings.TrimSpace(link)
		return nil
	})
}

// Save rewrites the file from the current snapshot.
func (r *Registry) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save(r.current())
}

func (r *Registry) save(m records) (err error) {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("registry: mkdir: %w", err)
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: encode: %w", err)
	}

	f, err := os.CreateTemp(dir, ".threads-*.json.tmp")
	if err != nil {
		return fmt.Errorf("registry: create temp: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err = f.Write(append(b, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("registry: write: %w", err)
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("registry: sync: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("registry: close: %w", err)
	}
	if r.beforeRename != nil {
		if err = r.beforeRename(tmp); err != nil {
			return err
		}
	}
	if err = os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("registry: rename: %w", err)
	}
	return nil
}
