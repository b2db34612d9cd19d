package kademlia

import "time"

// Config carries every tunable named in the wire protocol's constants
// section, mirroring the reference implementation's MaintenanceConfig
// pattern of a single struct with a DefaultConfig constructor.
type Config struct {
	// K is the bucket size and replication factor.
	K int
	// Alpha is the lookup parallelism (concurrent probes per iteration).
	Alpha int
	// RPCTimeout bounds how long an outbound RPC call waits for a reply.
	RPCTimeout time.Duration
	// IterativeLookupDelay is how long an iteration waits for outstanding
	// probes before re-evaluating termination, approximately 2/3 of
	// RPCTimeout.
	IterativeLookupDelay time.Duration
	// RefreshTimeout is how stale a bucket's last-accessed time must be
	// before it needs a refresh lookup.
	RefreshTimeout time.Duration
	// CheckRefreshInterval is how often the maintenance loop checks buckets
	// for staleness.
	CheckRefreshInterval time.Duration
	// DataExpireTimeout is the maximum age of a self-published item before
	// it must be republished.
	DataExpireTimeout time.Duration
	// ReplicateInterval is the maximum age of a replicated (non-owned) item
	// before it must be re-pushed.
	ReplicateInterval time.Duration
}

// DefaultConfig returns the constants named in the wire protocol spec:
// k=8, alpha=3, rpcTimeout=20s, iterativeLookupDelay≈2/3·rpcTimeout,
// refreshTimeout=1h, checkRefreshInterval=15m, dataExpireTimeout=24h,
// replicateInterval=1h.
func DefaultConfig() Config {
	rpcTimeout := 20 * time.Second
	return Config{
		K:                    8,
		Alpha:                3,
		RPCTimeout:           rpcTimeout,
		IterativeLookupDelay: rpcTimeout * 2 / 3,
		RefreshTimeout:       time.Hour,
		CheckRefreshInterval: 15 * time.Minute,
		DataExpireTimeout:    24 * time.Hour,
		ReplicateInterval:    time.Hour,
	}
}
