package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"udpquake/pkg/logx"
)

// Manager loads the config file and republishes it to subscribers when the
// file changes on disk. Reloads are debounced (editors write in bursts),
// content-hash deduplicated, and validated before being committed.
type Manager struct {
	path string

	mu  sync.RWMutex
	cfg *Config

	// subsMu guards the subscriber list so we never send on a channel that
	// is concurrently being closed in Unsubscribe.
	subsMu sync.Mutex
	subs   []chan *Config

	log logx.Logger

	// lastHash is the hash of the last committed config content; it lets
	// Watch skip redundant publishes on no-op write events.
	lastHash uint64
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

// Parse reads and strictly decodes the config file without committing it.
func (m *Manager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	jb, err := coerceToJSONBytes(m.path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (m *Manager) Commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hashConfig(cfg)
	m.mu.Unlock()
}

// Load parses and commits the file in one step.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			last := len(m.subs) - 1
			m.subs[i] = m.subs[last]
			m.subs[last] = nil
			m.subs = m.subs[:last]
			close(ch)
			return
		}
	}
}

func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		if ch == nil {
			continue
		}
		select {
		case ch <- cfg:
		default:
			// Subscriber is behind: drop its oldest update, push the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- cfg:
			default:
			}
		}
	}
}

// Watch blocks until ctx is canceled, republishing the config whenever the
// file changes. A broken fsnotify watcher is recreated with backoff.
func (m *Manager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	const (
		debounceDelay = 250 * time.Millisecond
		backoffBase   = 250 * time.Millisecond
		backoffMax    = 5 * time.Second
	)
	backoff := backoffBase

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		cfg, err := m.Parse()
		if err != nil {
			if !m.log.IsZero() {
				m.log.Warn("config reload rejected", logx.String("path", m.path), logx.Err(err))
			}
			return
		}

		h := hashConfig(cfg)
		m.mu.RLock()
		unchanged := h != 0 && h == m.lastHash
		m.mu.RUnlock()
		if unchanged {
			return
		}

		m.Commit(cfg)
		m.publish(cfg)
		if !m.log.IsZero() {
			m.log.Info("config reloaded", logx.String("path", m.path))
		}
	}
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounceDelay, reload)
	}

	wait := func() bool {
		if backoff < backoffMax {
			backoff *= 2
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
			return true
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		w, err := fsnotify.NewWatcher()
		if err == nil {
			err = w.Add(dir)
			if err != nil {
				_ = w.Close()
			}
		}
		if err != nil {
			if !m.log.IsZero() {
				m.log.Warn("config watch setup failed", logx.Err(err), logx.String("dir", dir))
			}
			if !wait() {
				return nil
			}
			continue
		}
		backoff = backoffBase

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				if strings.EqualFold(filepath.Base(ev.Name), file) {
					debounce()
				}
			case werr, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if werr != nil && !m.log.IsZero() {
					m.log.Warn("config watch error", logx.Err(werr), logx.String("dir", dir))
				}
			}
		}

		_ = w.Close()
		if !m.log.IsZero() {
			m.log.Warn("config watcher stopped; restarting", logx.String("dir", dir))
		}
		if !wait() {
			return nil
		}
	}
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
