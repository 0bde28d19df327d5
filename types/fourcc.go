package types

import (
	"fmt"
)

// fourCCString renders a vendor FourCC constant, falling back to hex for non-printable values.
func fourCCString(v uint32) string {
	b := []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%08X", v)
		}
	}
	return string(b)
}
