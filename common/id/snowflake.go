package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	mu   sync.Mutex
)

// Init initializes the Snowflake node with the given node ID.
// Each process kind (server, worker, relay) uses its own node ID so turn ids never collide.
func Init(nodeID int64) error {
	mu.Lock()
	defer mu.Unlock()

	if node != nil {
		return nil
	}

	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return err
	}
	node = n
	return nil
}

// New generates a new time-ordered int64 turn ID.
// Falls back to node 0 when Init was never called (tests, one-off tools).
func New() int64 {
	mu.Lock()
	if node == nil {
		node, _ = snowflake.NewNode(0)
	}
	n := node
	mu.Unlock()

	return n.Generate().Int64()
}
