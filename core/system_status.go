package core

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"
	"time"
)

// Pinger is satisfied by the credential store and by a Redis adapter.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisPinger adapts a go-redis client to Pinger.
type RedisPinger struct{ Client RedisClientRaw }

func (r RedisPinger) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

// DependencyStatus reports reachability of one backing service.
type DependencyStatus struct {
	Enabled bool   `json:"enabled"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// SystemStatus is the aggregated view shown on the admin dashboard.
type SystemStatus struct {
	Store   DependencyStatus `json:"store"`
	Redis   DependencyStatus `json:"redis"`
	Session struct {
		LoggedIn bool   `json:"logged_in"`
		Username string `json:"username,omitempty"`
	} `json:"session"`
	Lockout struct {
		Tracked int `json:"tracked"`
	} `json:"lockout"`
	Memory struct {
		UsedBytes  uint64 `json:"used_bytes"`
		TotalBytes uint64 `json:"total_bytes"`
	} `json:"memory"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// CollectSystemStatus pings each dependency best-effort; a nil Pinger is
// reported as disabled.
func CollectSystemStatus(ctx context.Context, store, redis Pinger, sm *SessionManager, lockout *MemoryLockout, startedAt time.Time) SystemStatus {
	var st SystemStatus

	st.Store = pingDependency(ctx, store)
	st.Redis = pingDependency(ctx, redis)

	if sm != nil {
		if p, ok := sm.CurrentUser(); ok {
			st.Session.LoggedIn = true
			st.Session.Username = p.Username
		}
	}
	if lockout != nil {
		st.Lockout.Tracked = lockout.Len()
	}

	// Memory (best-effort from /proc/meminfo)
	used, total := readMemInfo()
	st.Memory.UsedBytes = used
	st.Memory.TotalBytes = total

	if !startedAt.IsZero() {
		st.UptimeSeconds = int64(time.Since(startedAt).Seconds())
	}

	return st
}

func pingDependency(ctx context.Context, p Pinger) DependencyStatus {
	if p == nil {
		return DependencyStatus{}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return DependencyStatus{Enabled: true, Error: err.Error()}
	}
	return DependencyStatus{Enabled: true, OK: true}
}

// readMemInfo returns used and total bytes using /proc/meminfo.
// If unavailable, returns zeros.
func readMemInfo() (used, total uint64) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0
	}
	defer f.Close()
	var memTotal, memAvailable uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "MemTotal:") {
			memTotal = parseKiBLine(line)
		} else if strings.HasPrefix(line, "MemAvailable:") {
			memAvailable = parseKiBLine(line)
		}
	}
	if memTotal > 0 {
		total = memTotal
		if memAvailable <= memTotal {
			used = memTotal - memAvailable
		}
		// convert KiB -> bytes
		used *= 1024
		total *= 1024
	}
	return used, total
}

func parseKiBLine(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
