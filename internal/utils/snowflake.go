package utils

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// IDSource hands out snowflake IDs used as surrogate keys for all three
// record kinds. It is constructed once in main and injected, never held
// in package state.
type IDSource struct {
	node *snowflake.Node
}

// NewIDSource combines datacenter and worker IDs into a single snowflake
// node ID. Both use 5 bits (0-31).
func NewIDSource(datacenterID, workerID int64) (*IDSource, error) {
	node, err := snowflake.NewNode((datacenterID << 5) | workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %w", err)
	}
	return &IDSource{node: node}, nil
}

// Next generates a unique ID.
func (s *IDSource) Next() int64 {
	return s.node.Generate().Int64()
}
