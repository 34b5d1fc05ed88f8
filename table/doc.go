/*
Package table serializes the sorted contents of a sealed memtable into a
compact block stream and reads it back. It writes to any io.Writer and reads
from any io.ReaderAt; creating, syncing and tracking files is left to the
caller.

# Data Structure Documentation

# Table

A table contains a series of data blocks followed by an index, a bloom
filter and a table footer.

	Table layout:
	+---------+---------+---------+-------------+--------+--------------+
	| block 1 |   ...   | block n | block index | filter | table footer |
	+---------+---------+---------+-------------+--------+--------------+

	Block index:
	+-------------------------------+-----------------+-----------------------+--------------------------+--------+
	| last key len block 1 (varint) | last key block 1 | offset block 1 (varint) | last key len block 2 ... |   ...  |
	+-------------------------------+-----------------+-----------------------+--------------------------+--------+

	Filter:
	+-------------------------------+
	| bloom filter (bbloom JSON)    |
	+-------------------------------+

	Table footer:
	+------------------------+-------------------------+------------------+
	| index offset (8 bytes) | filter offset (8 bytes) |  magic (8 bytes) |
	+------------------------+-------------------------+------------------+

Block offsets in the index are delta encoded against the previous block.

# Block

A block comprises of a series of sections, followed by a section
index and a single-byte compression type indicator.

	Block layout:
	+-----------+---------+-----------+---------------+---------------------------+
	| section 1 |   ...   | section n | section index | compression type (1-byte) |
	+-----------+---------+-----------+---------------+---------------------------+

	Section index:
	+----------------------------+-------+----------------------------+-------------------------------+
	| section offset 2 (4 bytes) |  ...  | section offset n (4 bytes) |  number of sections (4 bytes) |
	+----------------------------+-------+----------------------------+-------------------------------+

# Section

A section is a series of key/value pairs where the first key is stored in full
while subsequent keys only store the suffix they do not share with their
predecessor.

	+-----------------+-------------------+--------------------+------------+---------+-------+
	| shared (varint) | unshared (varint) | value len (varint) | key suffix |  value  |  ...  |
	+-----------------+-------------------+--------------------+------------+---------+-------+
*/
package table
