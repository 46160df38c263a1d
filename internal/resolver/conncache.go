package resolver

import (
	"sync"

	"cronhub/internal/metrics"
)

// connCache keeps one open handle per tenant so repeat requests skip
// the reconnect. Entries are keyed by tenant id; a cached handle whose
// credential no longer matches the registry record is dropped, which
// covers credential rotation.
type connCache struct {
	mu    sync.Mutex
	conns map[string]*Conn
}

func newConnCache() *connCache {
	return &connCache{conns: map[string]*Conn{}}
}

// get returns the cached connection for tenantID if its credential
// still matches token, evicting it otherwise.
func (c *connCache) get(tenantID, token string) *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, ok := c.conns[tenantID]
	if !ok {
		return nil
	}
	if conn.Record.DBToken != token {
		delete(c.conns, tenantID)
		metrics.TenantConnections.Dec()
		retire(conn)
		return nil
	}
	return conn
}

// put stores conn and returns the entry callers must hand out. When two
// resolutions race past the cache miss, the first entry wins: the later
// conn has not been given to anyone yet and its handle is closed here,
// while the cached one may already be serving a request and must stay
// open.
func (c *connCache) put(conn *Conn) *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	old, ok := c.conns[conn.TenantID]
	if !ok {
		metrics.TenantConnections.Inc()
		c.conns[conn.TenantID] = conn
		return conn
	}
	if old == conn {
		return conn
	}
	if old.Record.DBToken == conn.Record.DBToken {
		_ = conn.DB.Close()
		return old
	}
	// Credential changed: the displaced handle may still be in use, so
	// it is drained rather than closed.
	retire(old)
	c.conns[conn.TenantID] = conn
	return conn
}

// retire drains a displaced handle. Requests already holding it finish
// normally; its pooled connections are released as they go idle instead
// of being closed under a live caller.
func retire(conn *Conn) {
	conn.DB.SetMaxIdleConns(0)
}
