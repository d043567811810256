package ledger

import (
	"hash/fnv"
	"sync"
)

const numShards = 64

// lockTable serializes mutations per player. Handles hash onto a fixed set
// of mutexes, so two players may share a shard but one player never runs
// two mutations at once.
type lockTable struct {
	shards [numShards]sync.Mutex
}

func (t *lockTable) lock(handle string) func() {
	h := fnv.New32a()
	h.Write([]byte(handle))
	mu := &t.shards[h.Sum32()%numShards]
	mu.Lock()
	return mu.Unlock
}
