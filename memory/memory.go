// Package memory implements the bit-packed, fixed-capacity action history
// carried by each agent. Ported from the shift-and-mask packing technique in
// the reference engine's Agent.add_to_memory, generalized from "one packed
// pair of actions per round" to "one packed action per slot" so a full 16
// deep history fits a single uint32 (2 bits x 16 slots = 32 bits).
package memory

import "github.com/pthm-cable/ipdcells/action"

// MaxCapacity is the largest number of actions a Memory can hold; 2 bits per
// slot times 16 slots fills exactly one uint32.
const MaxCapacity = 16

// Memory is an ordered, newest-first history of up to MaxCapacity actions,
// packed 2 bits per slot with the newest action in bits 0..1.
type Memory struct {
	bits   uint32
	length uint8
}

// FromRaw reconstructs a Memory from its packed bits and length, as stored
// on an Agent record. Bits beyond length are not masked off by this
// constructor; callers that round-trip through Agent fields are expected to
// have kept them consistent.
func FromRaw(bits uint32, length uint8) Memory {
	return Memory{bits: bits, length: length}
}

// Bits returns the raw packed field.
func (m Memory) Bits() uint32 { return m.bits }

// Length returns the number of actions currently recorded (0..MaxCapacity).
func (m Memory) Length() uint8 { return m.length }

// Push prepends a onto the history, shifting older entries up and masking
// off anything beyond capacity. Capacity bounds how many slots remain
// significant; entries beyond it are dropped, oldest first.
func (m Memory) Push(a action.Action, capacity uint8) Memory {
	if capacity > MaxCapacity {
		capacity = MaxCapacity
	}
	bits := (m.bits << 2) | uint32(a.Code())
	length := m.length + 1
	if length > capacity {
		length = capacity
	}
	bits &= mask(length)
	return Memory{bits: bits, length: length}
}

// Truncate keeps only the newest k entries. A k at or beyond the current
// length is a no-op.
func (m Memory) Truncate(k uint8) Memory {
	if k >= m.length {
		return m
	}
	return Memory{bits: m.bits & mask(k), length: k}
}

// SliceLast returns the newest k entries as a packed field plus length. k
// beyond the current length is clamped to the current length.
func (m Memory) SliceLast(k uint8) (bits uint32, length uint8) {
	if k > m.length {
		k = m.length
	}
	return m.bits & mask(k), k
}

// mask returns a bitmask covering the low 2*n bits (n in 0..16).
func mask(n uint8) uint32 {
	if n == 0 {
		return 0
	}
	if n >= MaxCapacity {
		return ^uint32(0)
	}
	return (uint32(1) << (uint32(n) * 2)) - 1
}
