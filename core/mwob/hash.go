package mwob

// nameHashBuckets is the legacy linker's hash table size; stored hashes
// are always reduced modulo this.
const nameHashBuckets = 1024

// NameHash computes the CodeWarrior name-table hash: the low byte of the
// length in the high byte, a rotating byte sum in the low byte, masked to
// the bucket range. Every name table entry stores this next to the string
// and parsers verify it.
func NameHash(name string) uint16 {
	hash := uint16(uint32(len(name)) & 0x00FF)
	if hash == 0 {
		return 0
	}
	var u uint8
	for i := 0; i < len(name); i++ {
		u = u>>3 | u<<5
		u += name[i]
	}
	return (hash<<8 | uint16(u)) & (nameHashBuckets - 1)
}
