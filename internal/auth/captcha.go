package auth

import (
	"crypto/rand"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const captchaDigits = 4

// CaptchaStore is a process-wide expiring store of login captchas. Entries
// are one-shot: verification removes them whether or not the code matched.
// Single-instance scope only; nothing is shared across processes.
type CaptchaStore struct {
	mu      sync.Mutex
	entries map[string]captchaEntry
	ttl     time.Duration
	done    chan struct{}
}

type captchaEntry struct {
	code    string
	expires time.Time
}

// NewCaptchaStore creates a captcha store and starts its sweep goroutine,
// which evicts expired entries once a minute until Close is called.
func NewCaptchaStore(ttl time.Duration) *CaptchaStore {
	s := &CaptchaStore{
		entries: make(map[string]captchaEntry),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Create issues a new captcha, returning its id and code.
func (s *CaptchaStore) Create() (id, code string) {
	id = uuid.NewString()
	code = randomDigits(captchaDigits)

	s.mu.Lock()
	s.entries[id] = captchaEntry{code: code, expires: time.Now().Add(s.ttl)}
	s.mu.Unlock()
	return id, code
}

// Verify consumes the captcha with the given id and reports whether the
// input matches. Unknown or expired ids fail; comparison ignores case and
// surrounding whitespace.
func (s *CaptchaStore) Verify(id, input string) bool {
	s.mu.Lock()
	entry, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()

	if !ok || time.Now().After(entry.expires) {
		return false
	}
	return strings.EqualFold(entry.code, strings.TrimSpace(input))
}

// Delete discards a captcha without verifying it (client-side refresh).
func (s *CaptchaStore) Delete(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// Close stops the sweep goroutine.
func (s *CaptchaStore) Close() {
	close(s.done)
}

func (s *CaptchaStore) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for id, entry := range s.entries {
				if now.After(entry.expires) {
					delete(s.entries, id)
				}
			}
			s.mu.Unlock()
		}
	}
}

func randomDigits(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			// crypto/rand only fails when the platform source is broken.
			d = big.NewInt(int64(time.Now().UnixNano() % 10))
		}
		b.WriteString(d.String())
	}
	return b.String()
}
