package checkout

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// GenerateNumber produces a human-readable order number:
// TW-<base36 millis>-<4 random bytes hex>, all upper case.
func GenerateNumber() string {
	ts := strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36))
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return fmt.Sprintf("TW-%s-%s", ts, strings.ToUpper(hex.EncodeToString(b)))
}
