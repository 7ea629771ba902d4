package realtime

import "hash/fnv"

// shardCount is the number of lock stripes used by every per-user map in this
// package. Unrelated users land on different stripes most of the time.
const shardCount = 64

func userShard(userID int64) int {
	return int(uint64(userID) % shardCount)
}

func stringShard(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % shardCount)
}
