package core

import (
	"crypto/sha256"
	"encoding/binary"
)

// Domain-separation tags keep reroll and item-drop derivations independent
// even when the entropy collaborator replays identical payloads.
const (
	rerollTag   = "relicforge/v1/reroll"
	itemDropTag = "relicforge/v1/itemdrop"
)

// bandSpace is the cumulative probability space in basis points.
const bandSpace = 10000

// entropyBand is one category with its width in basis points. Bands are
// listed rarest first; any remainder of the space falls into the last
// (lowest) band.
type entropyBand struct {
	name  string
	width uint64
}

var rerollBands = []entropyBand{
	{name: "radiant", width: 100},
	{name: "gleaming", width: 900},
	{name: "polished", width: 3000},
	{name: "plain", width: 6000},
}

var itemDropBands = []entropyBand{
	{name: "celestial_sigil", width: 50},
	{name: "ember_core", width: 450},
	{name: "guild_token", width: 2500},
	{name: "dust", width: 7000},
}

// deriveValue hashes the fulfillment payload under a fixed tag and reduces
// it onto the band space. The correlation ID is mixed in so two pending
// records fulfilled with the same payload draw independently.
func deriveValue(tag, correlationID string, payload []byte) uint64 {
	h := sha256.New()
	h.Write([]byte(tag))
	h.Write([]byte{0})
	h.Write([]byte(correlationID))
	h.Write([]byte{0})
	h.Write(payload)
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8]) % bandSpace
}

// selectBand walks the cumulative bands; values past the listed widths fall
// into the lowest band.
func selectBand(bands []entropyBand, value uint64) string {
	var cumulative uint64
	for _, band := range bands {
		cumulative += band.width
		if value < cumulative {
			return band.name
		}
	}
	return bands[len(bands)-1].name
}
