package handler

import (
	"sync"
	"time"
)

// LoginLimiter 按客户端 IP 在滑动窗口内统计登录失败次数。
type LoginLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	max      int
	window   time.Duration
	now      func() time.Time
}

// NewLoginLimiter 每个窗口内最多允许 max 次失败。
func NewLoginLimiter(max int, window time.Duration) *LoginLimiter {
	if max <= 0 {
		max = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &LoginLimiter{
		attempts: make(map[string][]time.Time),
		max:      max,
		window:   window,
		now:      time.Now,
	}
}

// Check 判断该 IP 能否继续尝试，同时清理过期记录。
func (l *LoginLimiter) Check(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.prune(ip)
	return len(kept) < l.max
}

// Record 记录一次失败尝试。
func (l *LoginLimiter) Record(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts[ip] = append(l.prune(ip), l.now())
}

// Reset 在登录成功后清除该 IP 的记录。
func (l *LoginLimiter) Reset(ip string) {
	l.mu.Lock()
	delete(l.attempts, ip)
	l.mu.Unlock()
}

// Window 返回统计窗口长度。
func (l *LoginLimiter) Window() time.Duration {
	return l.window
}

// Sweep 删除所有记录均已过期的 IP，返回删除数量。
// 不再访问的 IP 只会在这里被释放。
func (l *LoginLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for ip := range l.attempts {
		if l.prune(ip) == nil {
			removed++
		}
	}
	return removed
}

// Tracked 返回当前有失败记录的 IP 数量。
func (l *LoginLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.attempts)
}

func (l *LoginLimiter) prune(ip string) []time.Time {
	cutoff := l.now().Add(-l.window)
	hits := l.attempts[ip]
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.attempts, ip)
		return nil
	}
	l.attempts[ip] = kept
	return kept
}
