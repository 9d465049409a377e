package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
)

func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// HashStrings hashes the joined parts, used for judgment cache keys where
// the key must change whenever the element or its evidence corpus changes.
func HashStrings(parts ...string) string {
	return HashString(strings.Join(parts, "\x1f"))
}
