package analyzer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// entityID derives the deterministic id from (file_path, kind, name, line_start)
// per spec §4.B: "H(file_path ∥ kind ∥ name ∥ line_start) truncated to 16 hex
// characters". seen tracks ids already minted in this analysis run so that a
// genuine collision gets a suffix counter instead of silently merging two
// distinct entities.
func entityID(seen map[string]int, filePath, kind, name string, lineStart int) string {
	key := fmt.Sprintf("%s\x00%s\x00%s\x00%d", filePath, kind, name, lineStart)
	sum := sha256.Sum256([]byte(key))
	id := hex.EncodeToString(sum[:])[:16]

	if n, ok := seen[id]; ok {
		seen[id] = n + 1
		return fmt.Sprintf("%s-%d", id, n+1)
	}
	seen[id] = 0
	return id
}

// relationID is derived the same way over the relation's own identifying
// tuple; collisions are resolved the same way as entityID so two relations
// of the same kind between the same names on the same line don't clobber.
func relationID(seen map[string]int, filePath, kind, sourceID, targetName string, lineStart int) string {
	return entityID(seen, filePath, "rel:"+kind, sourceID+"->"+targetName, lineStart)
}
