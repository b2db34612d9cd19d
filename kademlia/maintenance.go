package kademlia

import (
	"context"
	"time"

	"github.com/kademux/kadtuple/id"
	"github.com/kademux/kadtuple/logging"
)

// RunMaintenance starts the periodic refresh/republish cycle and blocks
// until ctx is cancelled, mirroring the reference Maintainer's
// ticker-plus-ctx.Done select loop.
func (n *Node) RunMaintenance(ctx context.Context) {
	log := logging.New("kademlia", "RunMaintenance")
	ticker := time.NewTicker(n.config.CheckRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.RefreshNode(ctx)
			log.Debug("maintenance tick complete")
		}
	}
}

// RefreshNode performs one maintenance pass: it runs a find_node against a
// random id in the range of every non-empty bucket that this pass has never
// refreshed or last refreshed more than RefreshTimeout ago, then
// republishes or replicates stored entries as needed.
func (n *Node) RefreshNode(ctx context.Context) {
	n.refreshStaleBuckets(ctx)
	n.republishAndReplicate(ctx)
}

func (n *Node) refreshStaleBuckets(ctx context.Context) {
	for _, idx := range n.routing.NonEmptyBucketIndexes() {
		if !n.bucketNeedsRefresh(idx) {
			continue
		}
		target := randomIDInBucketRange(n.ID, idx)
		if _, err := n.IterativeFindNode(ctx, target); err != nil {
			n.log.WithError(err).Debug("refresh lookup failed")
		}
		n.markBucketAccessed(idx)
	}
}

func (n *Node) bucketNeedsRefresh(idx int) bool {
	last, ok := n.lastAccessed[idx]
	if !ok {
		return true
	}
	return time.Since(last) > n.config.RefreshTimeout
}

func (n *Node) markBucketAccessed(idx int) {
	n.lastAccessed[idx] = time.Now()
}

// randomIDInBucketRange returns a random id whose XOR distance from self
// has its highest set bit at position idx (matching id.BucketIndex's
// byte*8+bit, most-significant-bit-first numbering): every bit of
// distance before idx is 0 (the id agrees with self there), bit idx
// itself is 1, and every bit after it is random.
func randomIDInBucketRange(self id.ID, idx int) id.ID {
	random := randomIDInRange()
	selfBytes := self.Bytes()
	randomBytes := random.Bytes()

	byteIdx := idx / 8
	bit := uint(idx % 8)
	mask := byte(0x80) >> bit

	var result [id.Length]byte
	copy(result[:byteIdx], selfBytes[:byteIdx])

	// Flipping `bit` in self's own byte makes the distance bit at that
	// position 1 while leaving every higher bit (distance 0) untouched;
	// the lower bits are then randomised.
	flipped := selfBytes[byteIdx] ^ mask
	result[byteIdx] = (flipped &^ (mask - 1)) | (randomBytes[byteIdx] & (mask - 1))

	copy(result[byteIdx+1:], randomBytes[byteIdx+1:])

	rebuilt, _ := id.FromBytes(result[:])
	return rebuilt
}

// republishAndReplicate walks every locally held entry: the original
// publisher re-stores entries older than DataExpireTimeout via a full
// iterative_store; every other entry (including the publisher's own entries
// not yet that old) is re-pushed once its LastPublished is older than
// ReplicateInterval, keeping its publisher and original publish time.
func (n *Node) republishAndReplicate(ctx context.Context) {
	keys, err := n.dataStore.Keys()
	if err != nil {
		n.log.WithError(err).Warn("failed to list stored keys")
		return
	}
	now := time.Now()
	for _, key := range keys {
		entry, ok, err := n.dataStore.Get(key)
		if err != nil || !ok {
			continue
		}

		if entry.Publisher.Equal(n.ID) && now.Sub(entry.OriginalPublishTime) >= n.config.DataExpireTimeout {
			age := now.Sub(entry.OriginalPublishTime)
			if err := n.IterativeStore(ctx, key, entry.Value, n.ID, age); err != nil {
				n.log.WithError(err).Debug("republish failed")
			}
			continue
		}

		if now.Sub(entry.LastPublished) >= n.config.ReplicateInterval {
			age := now.Sub(entry.OriginalPublishTime)
			if err := n.IterativeStore(ctx, key, entry.Value, entry.Publisher, age); err != nil {
				n.log.WithError(err).Debug("replicate failed")
			}
		}
	}
}
