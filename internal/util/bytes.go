package util

func CopyBytes(src []byte) []byte {
	if src == nil {
		return nil
	}
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}

// WipeBytes best-effort zeroes the provided byte slice in place.
func WipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ScrubBytes overwrites b with sentinel and then zeroes it.
func ScrubBytes(b []byte, sentinel byte) {
	for i := range b {
		b[i] = sentinel
	}
	WipeBytes(b)
}
