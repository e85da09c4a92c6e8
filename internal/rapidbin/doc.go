// Package rapidbin encodes and decodes the compact binary trace format.
//
// A binary trace is a fixed 18-byte header followed by one 64-bit word per
// event, all big-endian:
//
//	offset  size  field
//	0       2     thread count   (top bit reserved)
//	2       4     lock count     (top bit reserved)
//	6       4     region count   (top bit reserved)
//	10      8     event count    (top bit reserved)
//	18      8*n   packed events
//
// Each event word packs four fields, low bits first:
//
//	bits  0-9   thread      (10 bits)
//	bits 10-13  op code     (4 bits)
//	bits 14-47  decoration  (34 bits)
//	bits 48-62  location    (15 bits)
//	bit  63     reserved
//
// # Interning
//
// Raw identifiers (goroutine-derived thread ids, lock ids, memory regions and
// program locations) are unbounded, so the Encoder replaces each with a small
// integer assigned in first-seen order. Fork and Join targets share the
// thread table with the executing thread. Decoded traces therefore carry the
// compacted ids; only relative identity survives encoding.
//
// # Domain limits
//
// An interned id that does not fit its field is an error (DOMAIN_OVERFLOW),
// never a silently truncated word. At most 1024 threads, 32768 locations and
// 2^31-1 locks or regions fit in one trace.
package rapidbin
