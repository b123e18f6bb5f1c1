package crypto

import (
	"crypto/rand"
	"encoding/hex"
)

func Rand32() [32]byte {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(err)
	}
	return buf
}

// RandTicket returns a random 16-character hex identifier used to name
// streaming sessions.
func RandTicket() string {
	buf := Rand32()
	return hex.EncodeToString(buf[:8])
}
