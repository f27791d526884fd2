package checkout

import (
	"crypto/rand"
	"fmt"
	"time"
)

// orderNumberCharset omits 0/O and 1/I so the code survives being read aloud.
var orderNumberCharset = []rune("23456789ABCDEFGHJKLMNPQRSTUVWXYZ")

const orderNumberSuffixLen = 6

// newOrderNumber produces a human-facing code like CM-20260314-7GK2QX. The
// random suffix keeps same-day numbers from colliding; the unique index on
// orders.order_number is the backstop.
func newOrderNumber(now time.Time) (string, error) {
	suffix := make([]rune, orderNumberSuffixLen)
	for i := range suffix {
		idx, err := randInt(len(orderNumberCharset))
		if err != nil {
			return "", err
		}
		suffix[i] = orderNumberCharset[idx]
	}
	return fmt.Sprintf("CM-%s-%s", now.UTC().Format("20060102"), string(suffix)), nil
}

func randInt(max int) (int, error) {
	if max <= 0 {
		return 0, fmt.Errorf("invalid max %d", max)
	}
	var buff = make([]byte, 1)
	if _, err := rand.Read(buff); err != nil {
		return 0, err
	}
	return int(buff[0]) % max, nil
}
