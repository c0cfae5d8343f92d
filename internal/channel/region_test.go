package channel

import "unsafe"

// unsafeBytes views an aligned word slice as bytes
func unsafeBytes(words []uint32) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(words)*4)
}
