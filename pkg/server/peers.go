package server

import (
	"sync"
)

// peerSet tracks connected peers and enforces the global and per-IP limits.
type peerSet struct {
	mu       sync.RWMutex
	peers    map[string]*Peer
	byIP     map[string]int
	maxPeers int
	maxPerIP int
	stopped  bool
}

func newPeerSet(maxPeers, maxPerIP int) *peerSet {
	return &peerSet{
		peers:    make(map[string]*Peer),
		byIP:     make(map[string]int),
		maxPeers: maxPeers,
		maxPerIP: maxPerIP,
	}
}

// check reports whether a peer from ip would be admitted. It is called
// before the upgrade so that refused clients get a plain HTTP error.
func (ps *peerSet) check(ip string) error {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.admitLocked(ip)
}

func (ps *peerSet) admitLocked(ip string) error {
	if ps.stopped {
		return ErrServerStopped
	}
	if ps.maxPeers > 0 && len(ps.peers) >= ps.maxPeers {
		return ErrMaxPeersReached
	}
	if ps.maxPerIP > 0 && ps.byIP[ip] >= ps.maxPerIP {
		return ErrTooManyPeersFromIP
	}
	return nil
}

// add registers p. The limits are checked again under the write lock since
// other upgrades may have completed after check.
func (ps *peerSet) add(p *Peer) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if err := ps.admitLocked(p.ip); err != nil {
		return err
	}
	ps.peers[p.id] = p
	ps.byIP[p.ip]++
	return nil
}

// remove unregisters p. It reports whether p was registered.
func (ps *peerSet) remove(p *Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if _, ok := ps.peers[p.id]; !ok {
		return false
	}
	delete(ps.peers, p.id)
	if ps.byIP[p.ip] <= 1 {
		delete(ps.byIP, p.ip)
	} else {
		ps.byIP[p.ip]--
	}
	return true
}

func (ps *peerSet) get(id string) *Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.peers[id]
}

func (ps *peerSet) len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.peers)
}

func (ps *peerSet) snapshot() []*Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make([]*Peer, 0, len(ps.peers))
	for _, p := range ps.peers {
		out = append(out, p)
	}
	return out
}

// stop refuses new peers and returns the ones still connected.
func (ps *peerSet) stop() []*Peer {
	ps.mu.Lock()
	ps.stopped = true
	ps.mu.Unlock()
	return ps.snapshot()
}
