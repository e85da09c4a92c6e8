// Package event defines the captured events of an instrumented run.
//
// An Event records that a logical thread performed one operation at one
// program location. The operation decides which operand (the "decoration")
// the event carries:
//
//   - Read, Write: the accessed memory region (address, length)
//   - Acquire, Request, Release: the lock id
//   - Fork, Join: the logical id of the child thread
//
// Op codes are part of the binary trace format and must not change.
package event
