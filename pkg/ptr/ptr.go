package ptr

import (
	"net"
	"strings"
	"sync"
	"time"
)

// PtrManager resolves and caches PTR names for replying hosts.
type PtrManager struct {
	mu         sync.Mutex
	cache      map[string]string
	lookupFunc func(ip string) ([]string, error)
	retries    int
	retryDelay time.Duration
}

// NewPtrManager creates a new PtrManager backed by the system resolver.
func NewPtrManager() *PtrManager {
	return &PtrManager{
		cache:      make(map[string]string),
		lookupFunc: net.LookupAddr,
		retries:    3,
		retryDelay: 100 * time.Millisecond,
	}
}

// normalizePTR strips the trailing dot of a fully qualified name.
func normalizePTR(name string) string {
	return strings.TrimSuffix(name, ".")
}

// RequestPTR looks up the PTR for ip unless it is cached or already being
// looked up. Failed lookups leave an empty entry so they are not retried.
func (pm *PtrManager) RequestPTR(ip string) {
	pm.mu.Lock()
	if _, exists := pm.cache[ip]; exists {
		pm.mu.Unlock()
		return
	}
	pm.cache[ip] = ""
	pm.mu.Unlock()

	for attempt := 0; attempt < pm.retries; attempt++ {
		names, err := pm.lookupFunc(ip)
		if err == nil && len(names) > 0 {
			pm.mu.Lock()
			pm.cache[ip] = normalizePTR(names[0])
			pm.mu.Unlock()
			return
		}
		if attempt < pm.retries-1 {
			time.Sleep(pm.retryDelay)
		}
	}
}

// GetPTR returns the cached PTR for ip and whether one is known.
func (pm *PtrManager) GetPTR(ip string) (string, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	ptr := pm.cache[ip]
	return ptr, ptr != ""
}

// Lookup resolves ip if needed and returns its PTR, or "" when none is known.
func (pm *PtrManager) Lookup(ip string) string {
	pm.RequestPTR(ip)
	ptr, _ := pm.GetPTR(ip)
	return ptr
}
