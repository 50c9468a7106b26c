package source

import (
	"encoding/binary"
	"os"

	"github.com/minio/highwayhash"
)

// fingerprintKey is a zero key passed to highwayhash.Sum, mirroring the
// teacher's fusion.groupCandidatesByGenePair use of a zeroSeed: fingerprints
// are compared only to each other within one process, never persisted or
// compared across binaries, so a fixed key is sufficient.
var fingerprintKey = make([]byte, highwayhash.Size)

// Fingerprint is a source's (path, size, mtime) identity, compressed into a
// single comparable value. A worker that reopens a Source after snapshot
// transport across a process boundary (spec.md §4.5, §9 open question 4)
// compares the fingerprint it last saw against a fresh stat of the file to
// decide whether a lazily-built cache is still valid. TabixSource is the
// only user: its scan cache is rebuilt when the fingerprint changes.
// IntervalTreeSource loads its trees once at open time and does not
// fingerprint its file.
type Fingerprint [highwayhash.Size]byte

// FingerprintFile stats path and hashes its size and modification time into
// a Fingerprint.
func FingerprintFile(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, err
	}
	buf := make([]byte, 0, len(path)+16)
	buf = append(buf, path...)
	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], uint64(info.Size()))
	buf = append(buf, sizeBuf[:]...)
	var mtimeBuf [8]byte
	binary.LittleEndian.PutUint64(mtimeBuf[:], uint64(info.ModTime().UnixNano()))
	buf = append(buf, mtimeBuf[:]...)
	return highwayhash.Sum(buf, fingerprintKey), nil
}
