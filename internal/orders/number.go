package orders

import (
	"fmt"
	"math/rand/v2"
	"time"
)

const numberAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewOrderNumber returns ORD-<unix millis>-<4 random base36 chars>.
// Uniqueness is enforced by the store; callers regenerate on collision.
func NewOrderNumber(now time.Time) string {
	suffix := make([]byte, 4)
	for i := range suffix {
		suffix[i] = numberAlphabet[rand.IntN(len(numberAlphabet))]
	}
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), suffix)
}
