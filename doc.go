/*
Package memtable implements the in-memory write buffer of a log-structured
merge storage engine: a concurrent skip list whose nodes live in a fixed-size
arena, and a manager that rotates a bounded set of them between active and
immutable states.

# Data Structure Documentation

# Arena

An arena is a flat byte buffer with an atomic bump cursor. Offset 0 is the
NULL pointer, allocations start at 1. Node headers and towers are allocated
at 8-byte aligned offsets, keys and values are appended unaligned.

	Arena layout:
	+----------+-----------+-----+-------+---------+-----------+-----+-----+-------------+
	| reserved | head node | key | value | padding |  node 1   | ... | ... | unallocated |
	+----------+-----------+-----+-------+---------+-----------+-----+-----+-------------+

# Node

A node comprises of a fixed 16-byte header followed by its tower: one
forward pointer per level. All fields are little endian.

	Node layout:
	+-------------------------+----------------------+--------------------+------------------+------------------+-----+--------------------+
	| value pointer (8 bytes) | key offset (4 bytes) | key size (2 bytes) | height (2 bytes) | next 0 (4 bytes) | ... | next h-1 (4 bytes) |
	+-------------------------+----------------------+--------------------+------------------+------------------+-----+--------------------+

	Value pointer:
	+-------------------------+-----------------------+
	| value offset (high 32b) | value size (low 32b)  |
	+-------------------------+-----------------------+

Tower entries are arena offsets of the next node at that level, 0 terminates
the level. They are only ever modified through compare-and-swap.

# Manager

A manager holds at most two active memtables (one receiving writes, one on
standby) and a bounded queue of sealed memtables waiting to be flushed.
When the writable memtable runs out of arena space it is sealed, queued, and
replaced by the standby or a fresh memtable. If the queue is full, writes
fail with ErrQueueFull until SealOldestImmutable hands out a memtable for
flushing.
*/
package memtable
