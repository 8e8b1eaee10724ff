package domain

// BroadcastRecord is the durable proof that the raw transaction behind a
// fingerprint was submitted to its chain. Records are append-only: once a
// fingerprint exists it is never overwritten or removed.
type BroadcastRecord struct {
	TxHash      string `json:"hash"`
	BroadcastAt int64  `json:"ts"`
}
