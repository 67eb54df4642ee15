package model

// CanonicalPair orders two user ids so the lower one comes first.
//
// Undirected relationships (friendships, direct conversations, pending
// friend requests) are stored as a single row keyed by the ordered pair, and
// every lookup must go through this function so that (a, b) and (b, a) hit the
// same row.
func CanonicalPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}
