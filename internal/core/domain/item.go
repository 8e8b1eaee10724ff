package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// QueueItem represents one pre-signed transaction awaiting favorable gas.
// Items are created externally (queue document or intake queue), mutated by
// the scheduler (attempts only) and removed exactly once, when the broadcast
// succeeds.
type QueueItem struct {
	Chain          string `yaml:"chain"           json:"chain"`
	RawTx          string `yaml:"rawTx"           json:"rawTx"`
	Label          string `yaml:"label"           json:"label"`
	MinBaseFeeGwei uint64 `yaml:"minBaseFeeGwei"  json:"minBaseFeeGwei"`
	Attempts       uint64 `yaml:"attempts"        json:"attempts"`
}

// Fingerprint returns the idempotency key for this item: a stable hash over
// (chain, raw transaction bytes). Two loads of the same document always yield
// the same fingerprint.
func (i QueueItem) Fingerprint() string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s:%s", i.Chain, i.RawTx)))
	return hex.EncodeToString(sum[:])
}
