package xlate

import (
	"net/netip"
	"sync"
	"sync/atomic"
)

// memoCacheSize bounds each lookup direction's memoization cache. The
// mapping table itself is expected to be small (tens of entries at
// most); 20 remembers the working set of addresses actually seen on the
// wire without growing unbounded under churn.
const memoCacheSize = 20

// Mapping pairs one IPv6 (local, remote) address pair with one IPv4
// (local, remote) pair, and an optional IPv4 gateway used in place of
// the IPv4 remote address when resolving the next-hop MAC for v6→v4
// traffic. The table built from these is immutable once constructed.
type Mapping struct {
	IPv6Local  netip.Addr
	IPv6Remote netip.Addr
	IPv4Local  netip.Addr
	IPv4Remote netip.Addr
	IPv4GW     netip.Addr // zero value (invalid) when absent
}

// V4Pair is the result of a v6→v4 direction lookup: the IPv4 addresses
// to use as source and destination on the outgoing packet, and the
// gateway to ARP-resolve against, if the mapping names one.
type V4Pair struct {
	Src netip.Addr
	Dst netip.Addr
	GW  netip.Addr // invalid (IsValid()==false) when absent
}

// Table is the static, immutable-after-construction mapping table (C2).
// It is safe for concurrent use by any number of translator goroutines:
// the backing slice never changes after NewTable returns, and each
// lookup direction's memoization cache is independently mutex-guarded.
type Table struct {
	mappings []Mapping

	v6Cache *lookupCache[v6Key, V4Pair]
	v4Cache *lookupCache[v4Key, v6Pair]
}

type v6Key struct{ src, dst netip.Addr }
type v4Key struct{ src, dst netip.Addr }
type v6Pair struct{ src, dst netip.Addr }

// NewTable builds an immutable mapping table from the given entries.
// The slice is copied; the caller's slice may be reused or mutated
// afterward without affecting the table.
func NewTable(mappings []Mapping) *Table {
	cp := make([]Mapping, len(mappings))
	copy(cp, mappings)

	return &Table{
		mappings: cp,
		v6Cache:  newLookupCache[v6Key, V4Pair](memoCacheSize),
		v4Cache:  newLookupCache[v4Key, v6Pair](memoCacheSize),
	}
}

// FindV6 resolves a v6→v4 direction lookup: given the wire-observed
// IPv6 source and destination of a packet arriving on the TUN side, it
// returns the IPv4 (source, destination, gateway) to use for the
// translated packet. The second return value is false when no mapping
// matches.
//
// A mapping matches when its IPv6Local equals src and its IPv6Remote
// equals dst — i.e. the packet originated from "our side" of that
// mapping's IPv6 pair.
func (t *Table) FindV6(src, dst netip.Addr) (V4Pair, bool) {
	key := v6Key{src: src, dst: dst}

	if v, ok := t.v6Cache.get(key); ok {
		return v, v.Src.IsValid()
	}

	for _, m := range t.mappings {
		if m.IPv6Local == src && m.IPv6Remote == dst {
			result := V4Pair{Src: m.IPv4Local, Dst: m.IPv4Remote, GW: m.IPv4GW}
			t.v6Cache.put(key, result)

			return result, true
		}
	}

	t.v6Cache.put(key, V4Pair{})

	return V4Pair{}, false
}

// FindV4 resolves a v4→v6 direction lookup: given the wire-observed
// IPv4 source and destination of a packet arriving on the raw-socket
// side, it returns the IPv6 (source, destination) to use for the
// translated packet.
//
// A mapping matches when its IPv4Local equals the wire destination and
// its IPv4Remote equals the wire source — the packet is arriving
// *at* our side of the mapping, sent *from* the peer's side. This
// mirrors the source implementation's internal find_v4_cached(dst, src)
// helper, which checks `mapping.ipv4_local == dst && mapping.ipv4_remote
// == src` despite its own exported find_v4(src, dst) wrapper naming the
// parameters the other way around; the observable behavior — not the
// parameter names — is what this function reproduces.
func (t *Table) FindV4(wireSrc, wireDst netip.Addr) (srcV6, dstV6 netip.Addr, ok bool) {
	key := v4Key{src: wireSrc, dst: wireDst}

	if v, found := t.v4Cache.get(key); found {
		return v.src, v.dst, v.src.IsValid()
	}

	for _, m := range t.mappings {
		if m.IPv4Local == wireDst && m.IPv4Remote == wireSrc {
			result := v6Pair{src: m.IPv6Remote, dst: m.IPv6Local}
			t.v4Cache.put(key, result)

			return result.src, result.dst, true
		}
	}

	t.v4Cache.put(key, v6Pair{})

	return netip.Addr{}, netip.Addr{}, false
}

// FindV4ByLocal reports whether any mapping's IPv4Local equals ip. It
// gates whether this bridge should answer an ARP request for ip: we
// only claim addresses we actually translate traffic for, never
// impersonating arbitrary hosts on the IPv4 segment.
func (t *Table) FindV4ByLocal(ip netip.Addr) bool {
	for _, m := range t.mappings {
		if m.IPv4Local == ip {
			return true
		}
	}

	return false
}

// Mappings returns a copy of the table's entries, for introspection
// (the debug HTTP surface) only. The hot lookup path never calls this.
func (t *Table) Mappings() []Mapping {
	cp := make([]Mapping, len(t.mappings))
	copy(cp, t.mappings)

	return cp
}

// TableSource is the read side of Table that the translator directions
// and the ARP cache depend on. *Table satisfies it directly; TableHolder
// satisfies it by dereferencing whichever *Table is currently loaded,
// which is what lets a SIGHUP reload swap the active table without
// touching the translators or the ARP cache that hold a TableSource.
type TableSource interface {
	FindV6(src, dst netip.Addr) (V4Pair, bool)
	FindV4(wireSrc, wireDst netip.Addr) (srcV6, dstV6 netip.Addr, ok bool)
	FindV4ByLocal(ip netip.Addr) bool
	Mappings() []Mapping
}

// TableHolder holds the currently active Table behind an atomic pointer,
// so that Store can swap in a freshly validated table while readers on
// other goroutines (mid-translation or serving a debug request) always
// see either the old table or the new one in full, never a partial
// update. The zero value is not usable; construct with NewTableHolder.
type TableHolder struct {
	p atomic.Pointer[Table]
}

// NewTableHolder returns a TableHolder initially holding table.
func NewTableHolder(table *Table) *TableHolder {
	h := &TableHolder{}
	h.p.Store(table)

	return h
}

// Store atomically swaps in table as the active one. Readers already in
// flight against the previous table are unaffected; the next lookup on
// any goroutine observes table.
func (h *TableHolder) Store(table *Table) {
	h.p.Store(table)
}

// Load returns the currently active table.
func (h *TableHolder) Load() *Table {
	return h.p.Load()
}

func (h *TableHolder) FindV6(src, dst netip.Addr) (V4Pair, bool) {
	return h.p.Load().FindV6(src, dst)
}

func (h *TableHolder) FindV4(wireSrc, wireDst netip.Addr) (srcV6, dstV6 netip.Addr, ok bool) {
	return h.p.Load().FindV4(wireSrc, wireDst)
}

func (h *TableHolder) FindV4ByLocal(ip netip.Addr) bool {
	return h.p.Load().FindV4ByLocal(ip)
}

func (h *TableHolder) Mappings() []Mapping {
	return h.p.Load().Mappings()
}

// -------------------------------------------------------------------------
// lookupCache — bounded memoization, one per lookup direction.
// -------------------------------------------------------------------------

// lookupCache is a small bounded cache keyed by K, memoizing results of
// type V. Eviction is least-recently-used once the cache is full: a hit
// in get moves its key to the most-recent end of order.
type lookupCache[K comparable, V any] struct {
	mu      sync.Mutex
	size    int
	order   []K
	entries map[K]V
}

func newLookupCache[K comparable, V any](size int) *lookupCache[K, V] {
	return &lookupCache[K, V]{
		size:    size,
		entries: make(map[K]V, size),
	}
}

func (c *lookupCache[K, V]) get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries[key]
	if ok {
		for i, k := range c.order {
			if k == key {
				c.order = append(append(c.order[:i:i], c.order[i+1:]...), key)
				break
			}
		}
	}

	return v, ok
}

func (c *lookupCache[K, V]) put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		if len(c.order) >= c.size {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}

		c.order = append(c.order, key)
	}

	c.entries[key] = value
}
