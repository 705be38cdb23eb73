package bridge

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"rokubridge/internal/device"
	"rokubridge/internal/logger"
)

// NonceEntry is a cached action result for a specific nonce
type NonceEntry struct {
	Nonce     string         `json:"nonce"`
	Action    *device.Action `json:"action"`
	Timestamp time.Time      `json:"timestamp"`
}

// NonceCache answers retried action requests per device without re-running them
type NonceCache struct {
	deviceCaches map[string]*lru.Cache[string, *NonceEntry]
	mutex        sync.RWMutex
	maxSize      int
	expiration   time.Duration
	stop         chan struct{}
	stopOnce     sync.Once
	logger       zerolog.Logger
}

// NewNonceCache creates a new nonce cache
func NewNonceCache(maxSize int, expiration time.Duration) *NonceCache {
	if maxSize <= 0 {
		maxSize = 50
	}
	if expiration <= 0 {
		expiration = time.Hour
	}

	nc := &NonceCache{
		deviceCaches: make(map[string]*lru.Cache[string, *NonceEntry]),
		maxSize:      maxSize,
		expiration:   expiration,
		stop:         make(chan struct{}),
		logger:       logger.GetLogger("nonce_cache"),
	}

	go nc.cleanupExpired()

	return nc
}

// GenerateNonce generates a unique nonce: millisecond timestamp, dash, 8 hex digits
func GenerateNonce() string {
	timestamp := time.Now().UnixMilli()

	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		timestamp += int64(time.Now().Nanosecond())
		randomBytes = []byte{
			byte(timestamp >> 24),
			byte(timestamp >> 16),
			byte(timestamp >> 8),
			byte(timestamp),
		}
	}

	return fmt.Sprintf("%d-%x", timestamp, randomBytes)
}

func (nc *NonceCache) getDeviceCache(deviceID string) *lru.Cache[string, *NonceEntry] {
	nc.mutex.Lock()
	defer nc.mutex.Unlock()

	cache, exists := nc.deviceCaches[deviceID]
	if !exists {
		cache, _ = lru.New[string, *NonceEntry](nc.maxSize)
		nc.deviceCaches[deviceID] = cache
	}

	return cache
}

// CheckNonce returns the cached action for a nonce if one is still fresh
func (nc *NonceCache) CheckNonce(deviceID, nonce string) (*device.Action, bool) {
	if nonce == "" {
		return nil, false
	}

	cache := nc.getDeviceCache(deviceID)

	if entry, found := cache.Get(nonce); found {
		if time.Since(entry.Timestamp) > nc.expiration {
			cache.Remove(nonce)
			return nil, false
		}
		return entry.Action, true
	}

	return nil, false
}

// Store caches the terminal action for a nonce
func (nc *NonceCache) Store(deviceID, nonce string, action *device.Action) {
	if nonce == "" {
		return
	}

	nc.getDeviceCache(deviceID).Add(nonce, &NonceEntry{
		Nonce:     nonce,
		Action:    action,
		Timestamp: time.Now(),
	})
}

// ClearDevice drops every nonce of a device
func (nc *NonceCache) ClearDevice(deviceID string) {
	nc.mutex.Lock()
	defer nc.mutex.Unlock()

	if cache, exists := nc.deviceCaches[deviceID]; exists {
		cache.Purge()
		delete(nc.deviceCaches, deviceID)
	}
}

// DeviceNonceCount returns the number of cached nonces for a device
func (nc *NonceCache) DeviceNonceCount(deviceID string) int {
	nc.mutex.RLock()
	cache, exists := nc.deviceCaches[deviceID]
	nc.mutex.RUnlock()

	if !exists {
		return 0
	}

	return cache.Len()
}

// Stats returns cache statistics
func (nc *NonceCache) Stats() map[string]interface{} {
	nc.mutex.RLock()
	defer nc.mutex.RUnlock()

	totalNonces := 0
	deviceStats := make(map[string]int)

	for deviceID, cache := range nc.deviceCaches {
		count := cache.Len()
		totalNonces += count
		deviceStats[deviceID] = count
	}

	return map[string]interface{}{
		"total_devices": len(nc.deviceCaches),
		"total_nonces":  totalNonces,
		"max_size":      nc.maxSize,
		"expiration":    nc.expiration.String(),
		"device_stats":  deviceStats,
	}
}

func (nc *NonceCache) cleanupExpired() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			nc.performCleanup()
		case <-nc.stop:
			return
		}
	}
}

// performCleanup removes expired entries and empty device caches
func (nc *NonceCache) performCleanup() {
	nc.mutex.RLock()
	deviceCaches := make(map[string]*lru.Cache[string, *NonceEntry], len(nc.deviceCaches))
	for deviceID, cache := range nc.deviceCaches {
		deviceCaches[deviceID] = cache
	}
	nc.mutex.RUnlock()

	now := time.Now()
	expiredCount := 0

	for deviceID, cache := range deviceCaches {
		for _, nonce := range cache.Keys() {
			if entry, found := cache.Peek(nonce); found && now.Sub(entry.Timestamp) > nc.expiration {
				cache.Remove(nonce)
				expiredCount++
			}
		}

		if cache.Len() == 0 {
			nc.mutex.Lock()
			delete(nc.deviceCaches, deviceID)
			nc.mutex.Unlock()
		}
	}

	if expiredCount > 0 {
		nc.logger.Debug().
			Int("expired_count", expiredCount).
			Msg("Cleaned up expired nonces")
	}
}

// Shutdown stops the cleanup routine and clears all caches
func (nc *NonceCache) Shutdown() {
	nc.stopOnce.Do(func() { close(nc.stop) })

	nc.mutex.Lock()
	defer nc.mutex.Unlock()

	for _, cache := range nc.deviceCaches {
		cache.Purge()
	}
	nc.deviceCaches = make(map[string]*lru.Cache[string, *NonceEntry])
}

// ValidateNonce checks the timestamp-hex format produced by GenerateNonce
func ValidateNonce(nonce string) bool {
	if len(nonce) < 13 || strings.Count(nonce, "-") != 1 {
		return false
	}

	dashIndex := strings.Index(nonce, "-")

	timestampPart := nonce[:dashIndex]
	if len(timestampPart) < 13 {
		return false
	}
	for _, c := range timestampPart {
		if c < '0' || c > '9' {
			return false
		}
	}

	randomPart := nonce[dashIndex+1:]
	if len(randomPart) != 8 {
		return false
	}
	for _, c := range randomPart {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}

	return true
}
