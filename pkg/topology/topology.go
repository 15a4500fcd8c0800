// Package topology tracks USB device addresses and their parent/port
// attachment points, implementing the asymmetric address allocation a
// hub-aware host stack needs: hub addresses stay in a small stable range
// because they appear as parent pointers in descendant entries, while
// non-hub addresses take the high range since they are never a parent.
package topology

import (
	"strconv"
	"strings"
	"sync"

	"github.com/ardnew/usbhost/pkg"
	"github.com/ardnew/usbhost/pkg/bitset"
)

// MaxHubs is the number of addresses reserved for hubs (1..MaxHubs).
const MaxHubs = 15

// MaxAddress is the highest assignable device address.
const MaxAddress = 31

// entry records a device's parent hub address and parent port number (both
// below 16, as Connect enforces) and whether the device is a hub. An entry
// with valid false means the address is free.
type entry struct {
	parentHub  uint8
	parentPort uint8
	isHub      bool
	valid      bool
}

// Topology is the address table for one bus: up to MaxAddress devices, at
// most MaxHubs of which may be hubs. The zero value is an empty topology
// with address 0 permanently reserved (root, never assigned).
type Topology struct {
	mu      sync.Mutex
	entries [MaxAddress + 1]entry
}

// New returns an empty Topology.
func New() *Topology {
	return &Topology{}
}

// Connect assigns an address for a device attached at (parentHub,
// parentPort). If an entry already exists for that attachment point, its
// address is returned unchanged (idempotent reconnect). Hub addresses are
// drawn ascending from 1, non-hub addresses descending from MaxAddress;
// the two ranges cannot collide because a hub is always assigned from the
// bottom and a non-hub from the top of the same table.
func (t *Topology) Connect(parentHub, parentPort uint8, isHub bool) (uint8, error) {
	if parentHub >= 16 || parentPort >= 16 {
		return 0, pkg.ErrInvalidParameter
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for addr := 1; addr <= MaxAddress; addr++ {
		e := t.entries[addr]
		if e.valid && e.parentHub == parentHub && e.parentPort == parentPort {
			pkg.LogDebug(pkg.ComponentTopology, "reconnect idempotent",
				"addr", addr, "parent_hub", parentHub, "parent_port", parentPort)
			return uint8(addr), nil
		}
	}

	var addrs []int
	if isHub {
		addrs = make([]int, 0, MaxHubs)
		for a := 1; a <= MaxHubs; a++ {
			addrs = append(addrs, a)
		}
	} else {
		addrs = make([]int, 0, MaxAddress-MaxHubs)
		for a := MaxAddress; a >= 1; a-- {
			addrs = append(addrs, a)
		}
	}

	for _, addr := range addrs {
		if !t.entries[addr].valid {
			t.entries[addr] = entry{
				parentHub:  parentHub,
				parentPort: parentPort,
				isHub:      isHub,
				valid:      true,
			}
			pkg.LogDebug(pkg.ComponentTopology, "address assigned",
				"addr", addr, "parent_hub", parentHub, "parent_port", parentPort, "is_hub", isHub)
			return uint8(addr), nil
		}
	}

	return 0, pkg.ErrNoAddress
}

// Disconnect clears the entry for the device attached at (parentHub,
// parentPort) and transitively clears every descendant whose parent chain
// passes through it. It iterates to a fixed point: each pass clears any
// entry whose parent hub address was cleared in a prior pass, repeating
// until a pass clears nothing. The table has at most MaxAddress entries,
// so this is bounded and simpler than maintaining a real tree.
func (t *Topology) Disconnect(parentHub, parentPort uint8) bitset.BitSet {
	t.mu.Lock()
	defer t.mu.Unlock()

	var cleared bitset.BitSet

	// Clear the root of this disconnect first.
	for addr := 1; addr <= MaxAddress; addr++ {
		e := t.entries[addr]
		if e.valid && e.parentHub == parentHub && e.parentPort == parentPort {
			t.entries[addr] = entry{}
			cleared.Set(addr)
		}
	}

	for {
		progressed := false
		for addr := 1; addr <= MaxAddress; addr++ {
			e := t.entries[addr]
			if !e.valid {
				continue
			}
			if cleared.Contains(int(e.parentHub)) {
				t.entries[addr] = entry{}
				cleared.Set(addr)
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}

	if cleared.Len() > 0 {
		pkg.LogInfo(pkg.ComponentTopology, "devices disconnected",
			"parent_hub", parentHub, "parent_port", parentPort, "count", cleared.Len())
	}

	return cleared
}

// Present reports whether addr currently has an assigned entry.
func (t *Topology) Present(addr uint8) bool {
	if addr == 0 || int(addr) > MaxAddress {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[addr].valid
}

// IsHub reports whether addr is present and was assigned as a hub.
func (t *Topology) IsHub(addr uint8) bool {
	if addr == 0 || int(addr) > MaxAddress {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[addr]
	return e.valid && e.isHub
}

// Parent returns the parent hub address and port number for addr.
func (t *Topology) Parent(addr uint8) (hub, port uint8, ok bool) {
	if addr == 0 || int(addr) > MaxAddress {
		return 0, 0, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[addr]
	if !e.valid {
		return 0, 0, false
	}
	return e.parentHub, e.parentPort, true
}

// String renders the tree as "parent:(child child:(grandchild))", rooted at
// address 0, for logging and debugging. Children are visited in ascending
// address order.
func (t *Topology) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var b strings.Builder
	t.writeNode(&b, 0)
	return b.String()
}

func (t *Topology) writeNode(b *strings.Builder, addr int) {
	b.WriteString(strconv.Itoa(addr))

	var children []int
	for a := 1; a <= MaxAddress; a++ {
		e := t.entries[a]
		if e.valid && int(e.parentHub) == addr {
			children = append(children, a)
		}
	}
	if len(children) == 0 {
		return
	}

	b.WriteString(":(")
	for i, c := range children {
		if i > 0 {
			b.WriteByte(' ')
		}
		t.writeNode(b, c)
	}
	b.WriteByte(')')
}
