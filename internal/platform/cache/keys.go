package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// KeyPrefix namespaces every key this service writes so pattern invalidation
// never touches foreign data in a shared Redis.
const KeyPrefix = "wird:q:"

// QueryKey derives a deterministic cache key from a query type, the requesting
// user, and the serialized query payload. The user id is embedded as a tag so
// all of a user's entries can be invalidated with one pattern.
func QueryKey(queryType, userID string, payload []byte) string {
	digest := sha256.Sum256(payload)
	return fmt.Sprintf("%s%s:u:%s:%s", KeyPrefix, queryType, userID, hex.EncodeToString(digest[:8]))
}

// UserPattern returns the glob matching every cached query tagged to userID.
func UserPattern(userID string) string {
	return fmt.Sprintf("%s*:u:%s:*", KeyPrefix, userID)
}
