// Package uspace implements the per-task address space abstraction
// referenced in SPEC_FULL.md §4.6: a bounds-checked byte arena standing
// in for a task's user-space memory, modeled on gVisor's
// AddressSpaceActive/IovecsIOSequence pointer-validation pattern —
// every access is validated before it touches the backing slice.
package uspace

import "github.com/behrlich/microvnode/internal/kerr"

// AddressSpace is a fixed-size byte arena owned by one task.
type AddressSpace struct {
	mem []byte
}

// New allocates an address space of the given size, zero-filled.
func New(size uint32) *AddressSpace {
	return &AddressSpace{mem: make([]byte, size)}
}

// Size returns the arena's total size.
func (a *AddressSpace) Size() uint32 { return uint32(len(a.mem)) }

// Read copies length bytes starting at addr into a fresh slice. Rejects
// any access that would run past the arena, rather than clamping it —
// an out-of-bounds syscall argument is a programming error in the
// calling V-Node, not a short read.
func (a *AddressSpace) Read(addr, length uint32) ([]byte, error) {
	end, err := a.checkRange(addr, length)
	if err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, a.mem[addr:end])
	return out, nil
}

// Write copies data into the arena at addr. Rejects writes that would
// run past the arena.
func (a *AddressSpace) Write(addr uint32, data []byte) error {
	end, err := a.checkRange(addr, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(a.mem[addr:end], data)
	return nil
}

func (a *AddressSpace) checkRange(addr, length uint32) (end uint32, err error) {
	end = addr + length
	if end < addr || end > a.Size() {
		return 0, kerr.New("ADDRESS_SPACE_ACCESS", kerr.CodeInvalidArgument, "access out of bounds")
	}
	return end, nil
}
