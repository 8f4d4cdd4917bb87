package scheduler

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// generateJobID mirrors the teacher's RSMQ-style id: a base36 timestamp
// component followed by a base36 hash suffix, so ids sort roughly by
// creation time while staying collision-resistant under concurrent
// enqueues (grounded on internal/scheduler/id.go's generateRSMQID).
func generateJobID(now time.Time) string {
	ts := toBase36(uint64(now.UnixNano() / int64(time.Millisecond)))
	for len(ts) < 10 {
		ts = "0" + ts
	}

	var buf [16]byte
	rand.Read(buf[:])
	sum := sha256.Sum256(buf[:])
	suffix := strings.ToLower(base64.RawURLEncoding.EncodeToString(sum[:]))
	suffix = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, suffix)
	if len(suffix) > 22 {
		suffix = suffix[:22]
	}
	for len(suffix) < 22 {
		suffix += "0"
	}

	return fmt.Sprintf("%s%s", ts, suffix)
}

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func toBase36(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{base36Alphabet[n%36]}, buf...)
		n /= 36
	}
	return string(buf)
}
