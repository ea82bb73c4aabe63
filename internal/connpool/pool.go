// Package connpool bounds NNTP connections per server. Each poster
// invocation and each presence check acquires a weight from its server's
// semaphore, so concurrent releases never exceed the configured connection
// count for any server.
package connpool

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"juicenet/internal/config"
)

// Lease is a held share of one server's connections.
type Lease struct {
	Server      config.Server
	Connections int

	pool *Pool
	once sync.Once
}

// Release returns the connections to the pool. Calling it twice is a no-op.
func (l *Lease) Release() {
	if l == nil || l.pool == nil {
		return
	}
	l.once.Do(func() {
		l.pool.release(l.Server.Name, l.Connections)
	})
}

type slot struct {
	server config.Server
	sem    *semaphore.Weighted
	max    int
	inUse  int
}

// Pool holds one weighted semaphore per server.
type Pool struct {
	mu    sync.Mutex
	order []string
	slots map[string]*slot
	next  int
}

// New builds a pool over the configured servers. Servers without a
// connection limit get one connection.
func New(servers []config.Server) *Pool {
	p := &Pool{slots: make(map[string]*slot, len(servers))}
	for _, server := range servers {
		limit := server.Connections
		if limit <= 0 {
			limit = 1
		}
		name := server.Name
		if name == "" {
			name = server.Address()
			server.Name = name
		}
		p.order = append(p.order, name)
		p.slots[name] = &slot{server: server, sem: semaphore.NewWeighted(int64(limit)), max: limit}
	}
	return p
}

// Servers returns the pool's servers in configuration order.
func (p *Pool) Servers() []config.Server {
	servers := make([]config.Server, 0, len(p.order))
	for _, name := range p.order {
		servers = append(servers, p.slots[name].server)
	}
	return servers
}

// Acquire blocks until want connections on the next server in rotation are
// free. want is capped to the server's limit; want <= 0 takes the whole
// server.
func (p *Pool) Acquire(ctx context.Context, want int) (*Lease, error) {
	if len(p.order) == 0 {
		return nil, fmt.Errorf("connection pool has no servers")
	}
	p.mu.Lock()
	name := p.order[p.next%len(p.order)]
	p.next++
	p.mu.Unlock()
	return p.AcquireFrom(ctx, name, want)
}

// AcquireFrom blocks until want connections on the named server are free.
func (p *Pool) AcquireFrom(ctx context.Context, name string, want int) (*Lease, error) {
	s, ok := p.slots[name]
	if !ok {
		return nil, fmt.Errorf("unknown server %q", name)
	}
	if want <= 0 || want > s.max {
		want = s.max
	}
	if err := s.sem.Acquire(ctx, int64(want)); err != nil {
		return nil, err
	}
	p.mu.Lock()
	s.inUse += want
	p.mu.Unlock()
	return &Lease{Server: s.server, Connections: want, pool: p}, nil
}

// InUse reports the connections currently leased from a server.
func (p *Pool) InUse(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.slots[name]; ok {
		return s.inUse
	}
	return 0
}

func (p *Pool) release(name string, n int) {
	s, ok := p.slots[name]
	if !ok {
		return
	}
	p.mu.Lock()
	s.inUse -= n
	p.mu.Unlock()
	s.sem.Release(int64(n))
}
