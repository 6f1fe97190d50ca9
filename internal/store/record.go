package store

import (
	"encoding/json"

	"github.com/roach88/rehook/internal/ir"
)

// Instance is one running copy of a registered app.
type Instance struct {
	ID    string    `json:"id"`
	App   string    `json:"app"`
	Props ir.Object `json:"props"`

	// Seq is the seq of the last committed cycle, 0 before the first one.
	Seq int64 `json:"seq"`
}

// CycleEntry is one row of the cycle log.
//
// Response is kept as the raw JSON the host produced so the log survives
// changes to the engine's response type.
type CycleEntry struct {
	Seq         int64           `json:"seq"`
	Request     ir.Request      `json:"request"`
	Response    json.RawMessage `json:"response"`
	StateDigest string          `json:"state_digest"`
}
