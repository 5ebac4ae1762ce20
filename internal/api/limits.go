package api

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	idempotencyHeader     = "Idempotency-Key"
	idempotencyTTL        = 10 * time.Minute
	idempotencyMaxEntries = 1024
)

// clientKey identifies the caller for rate and stream limits.
func clientKey(r *http.Request) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return "ip:unknown"
	}
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return "ip:" + remote
	}
	if strings.TrimSpace(host) == "" {
		return "ip:unknown"
	}
	return "ip:" + host
}

type streamLimiter struct {
	maxGlobal    int
	maxPerClient int

	mu       sync.Mutex
	global   int
	byClient map[string]int
}

func newStreamLimiter(maxGlobal, maxPerClient int) *streamLimiter {
	return &streamLimiter{
		maxGlobal:    maxGlobal,
		maxPerClient: maxPerClient,
		byClient:     make(map[string]int),
	}
}

func (l *streamLimiter) acquire(client string) (func(), bool) {
	if l == nil {
		return func() {}, true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.global >= l.maxGlobal || l.byClient[client] >= l.maxPerClient {
		return nil, false
	}
	l.global++
	l.byClient[client]++
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.global--
			if next := l.byClient[client] - 1; next > 0 {
				l.byClient[client] = next
			} else {
				delete(l.byClient, client)
			}
		})
	}, true
}

type idempotencyEntry struct {
	bodyHash  string
	createdAt time.Time
	// done is closed once status and response are set.
	done     chan struct{}
	status   int
	response []byte
}

func (e *idempotencyEntry) settled() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// idempotencyCache replays responses of retried POSTs carrying the same key
// within one session. The first request claims the key; retries arriving
// while it runs wait for its response instead of running again.
type idempotencyCache struct {
	mu      sync.Mutex
	entries map[string]*idempotencyEntry
}

func newIdempotencyCache() *idempotencyCache {
	return &idempotencyCache{entries: make(map[string]*idempotencyEntry)}
}

// claim returns the entry for key. claimed is true when the caller owns the
// entry and must settle it; conflict is true when the key was used with a
// different body.
func (c *idempotencyCache) claim(key, bodyHash string, now time.Time) (entry *idempotencyEntry, claimed bool, conflict bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune(now)
	if e, ok := c.entries[key]; ok {
		if e.bodyHash != bodyHash {
			return nil, false, true
		}
		return e, false, false
	}
	e := &idempotencyEntry{bodyHash: bodyHash, createdAt: now, done: make(chan struct{})}
	c.entries[key] = e
	c.evict()
	return e, true, false
}

// settle publishes the response of a claimed entry to waiting retries.
func (c *idempotencyCache) settle(e *idempotencyEntry, status int, response []byte) {
	e.status = status
	e.response = append([]byte(nil), response...)
	close(e.done)
}

func (c *idempotencyCache) evict() {
	if len(c.entries) <= idempotencyMaxEntries {
		return
	}
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for k, e := range c.entries {
		if !e.settled() {
			continue
		}
		if oldestKey == "" || e.createdAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.createdAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *idempotencyCache) prune(now time.Time) {
	for k, e := range c.entries {
		if e.settled() && now.Sub(e.createdAt) > idempotencyTTL {
			delete(c.entries, k)
		}
	}
}

func idempotencyCacheKey(sessionID, raw string) string {
	key := strings.TrimSpace(raw)
	if key == "" {
		return ""
	}
	return sessionID + "|" + key
}

func hashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
