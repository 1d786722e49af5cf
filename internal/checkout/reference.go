package checkout

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"time"
)

// ReferencePrefix starts every payment reference this storefront generates.
const ReferencePrefix = "KC"

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewReference returns "<prefix>-<unix millis>-<6 base36 chars>". Each checkout attempt gets a
// fresh one; references are never reused after a failure.
func NewReference(now time.Time) string {
	suffix := make([]byte, 6)
	max := big.NewInt(int64(len(base36)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		suffix[i] = base36[n.Int64()]
	}
	return ReferencePrefix + "-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + string(suffix)
}
