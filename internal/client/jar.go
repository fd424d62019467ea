package client

import "sync"

// MemoryJar is a CookieJar held in memory.
type MemoryJar struct {
	mu      sync.Mutex
	cookies map[string]string
}

// NewMemoryJar returns an empty jar.
func NewMemoryJar() *MemoryJar {
	return &MemoryJar{cookies: make(map[string]string)}
}

// Cookie returns the value stored under name.
func (j *MemoryJar) Cookie(name string) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	v, ok := j.cookies[name]
	return v, ok
}

// SetCookie stores value under name, replacing any previous value.
func (j *MemoryJar) SetCookie(name, value string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cookies[name] = value
	return nil
}

// EraseCookie removes name. Erasing a missing cookie is not an error.
func (j *MemoryJar) EraseCookie(name string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.cookies, name)
	return nil
}
