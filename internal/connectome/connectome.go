// Package connectome holds the typed result of a connection query.
package connectome

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// Connection identifies one synapse by its five coordinates.
type Connection struct {
	Source       uint64 `json:"source"`
	Target       uint64 `json:"target"`
	TargetThread int    `json:"target_thread"`
	SynapseID    int    `json:"synapse_id"`
	Port         int    `json:"port"`
}

func (c Connection) String() string {
	return fmt.Sprintf("%d->%d (thread %d, synapse %d, port %d)", c.Source, c.Target, c.TargetThread, c.SynapseID, c.Port)
}

// UnmarshalJSON accepts either the object form written by MarshalJSON or
// the compact array form [source, target, target_thread, synapse_id, port].
func (c *Connection) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		var tuple []json.Number
		if err := json.Unmarshal(trimmed, &tuple); err != nil {
			return fmt.Errorf("connection tuple: %w", err)
		}
		if len(tuple) != 5 {
			return fmt.Errorf("connection tuple has %d elements, want 5", len(tuple))
		}
		fields := make([]int64, len(tuple))
		for i, n := range tuple {
			v, err := n.Int64()
			if err != nil || v < 0 {
				return fmt.Errorf("connection tuple element %d: %q is not a non-negative integer", i, n)
			}
			fields[i] = v
		}
		*c = Connection{
			Source:       uint64(fields[0]),
			Target:       uint64(fields[1]),
			TargetThread: int(fields[2]),
			SynapseID:    int(fields[3]),
			Port:         int(fields[4]),
		}
		return nil
	}

	type plain Connection
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Connection(p)
	return nil
}

// Connectome is an ordered set of connections. The zero value and a nil
// pointer are both empty.
type Connectome struct {
	conns []Connection
}

// New wraps conns. A nil slice yields an empty connectome.
func New(conns []Connection) *Connectome {
	return &Connectome{conns: slices.Clone(conns)}
}

// Len returns the number of connections.
func (c *Connectome) Len() int {
	if c == nil {
		return 0
	}
	return len(c.conns)
}

// All returns a copy of the connections.
func (c *Connectome) All() []Connection {
	if c == nil || len(c.conns) == 0 {
		return []Connection{}
	}
	return slices.Clone(c.conns)
}

// Sources returns the source of every connection, in order.
func (c *Connectome) Sources() []uint64 {
	out := make([]uint64, 0, c.Len())
	for _, conn := range c.All() {
		out = append(out, conn.Source)
	}
	return out
}

// Targets returns the target of every connection, in order.
func (c *Connectome) Targets() []uint64 {
	out := make([]uint64, 0, c.Len())
	for _, conn := range c.All() {
		out = append(out, conn.Target)
	}
	return out
}

// MarshalJSON renders the connectome as a JSON array.
func (c *Connectome) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.All())
}
