package core

import (
	"fmt"
	"sort"
	"time"
)

// BlockMetadata describes a cached block's identity.
type BlockMetadata struct {
	Height    uint32
	Hash      string
	Timestamp time.Time
}

// CachedBlock is a block's metadata, the transform state snapshot taken
// immediately after processing it, and the CDC records it emitted.
type CachedBlock struct {
	Metadata      BlockMetadata
	StateSnapshot *TransformState
	CdcMessages   []CdcMessage
}

// BlockCache is a bounded, FIFO-evicted, height-ordered sequence of cached
// blocks that makes rollback and common-ancestor search possible.
type BlockCache struct {
	maxSize uint32
	blocks  []CachedBlock
}

// NewBlockCache returns an empty cache bounded to maxSize entries.
func NewBlockCache(maxSize uint32) (*BlockCache, error) {
	if maxSize == 0 {
		return nil, fmt.Errorf("%w: cache size must be greater than 0", ErrConfiguration)
	}
	return &BlockCache{maxSize: maxSize, blocks: make([]CachedBlock, 0, maxSize)}, nil
}

// AddBlock appends a processed block, evicting the oldest entry on overflow.
func (c *BlockCache) AddBlock(meta BlockMetadata, snapshot *TransformState, msgs []CdcMessage) {
	c.blocks = append(c.blocks, CachedBlock{Metadata: meta, StateSnapshot: snapshot, CdcMessages: msgs})
	if uint32(len(c.blocks)) > c.maxSize {
		c.blocks = c.blocks[1:]
	}
}

func (c *BlockCache) indexAtHeight(height uint32) int {
	for i, b := range c.blocks {
		if b.Metadata.Height == height {
			return i
		}
	}
	return -1
}

func (c *BlockCache) GetLatestBlock() (CachedBlock, bool) {
	if len(c.blocks) == 0 {
		return CachedBlock{}, false
	}
	return c.blocks[len(c.blocks)-1], true
}

func (c *BlockCache) GetBlockAtHeight(height uint32) (CachedBlock, bool) {
	if i := c.indexAtHeight(height); i >= 0 {
		return c.blocks[i], true
	}
	return CachedBlock{}, false
}

func (c *BlockCache) GetBlockWithHash(hash string) (CachedBlock, bool) {
	for _, b := range c.blocks {
		if b.Metadata.Hash == hash {
			return b, true
		}
	}
	return CachedBlock{}, false
}

func (c *BlockCache) GetBlockHash(height uint32) (string, bool) {
	b, ok := c.GetBlockAtHeight(height)
	if !ok {
		return "", false
	}
	return b.Metadata.Hash, true
}

func (c *BlockCache) GetStateSnapshot(height uint32) (*TransformState, bool) {
	b, ok := c.GetBlockAtHeight(height)
	if !ok {
		return nil, false
	}
	return b.StateSnapshot, true
}

// HeightHash is a (height, hash) pair from a candidate chain, used for
// common-ancestor search.
type HeightHash struct {
	Height uint32
	Hash   string
}

// FindCommonAncestor returns the highest height at which the candidate chain
// and the cache hold the identical hash, scanning candidates from highest to
// lowest height, or false if there is none.
func (c *BlockCache) FindCommonAncestor(candidates []HeightHash) (uint32, bool) {
	sorted := make([]HeightHash, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Height > sorted[j].Height })

	for _, cand := range sorted {
		if cached, ok := c.GetBlockHash(cand.Height); ok && cached == cand.Hash {
			return cand.Height, true
		}
	}
	return 0, false
}

// Rollback truncates everything strictly above height and returns the state
// snapshot recorded at height. Fails with ErrReorgHandling if height is not
// cached.
func (c *BlockCache) Rollback(height uint32) (*TransformState, error) {
	i := c.indexAtHeight(height)
	if i < 0 {
		return nil, fmt.Errorf("%w: block at height %d not found in cache", ErrReorgHandling, height)
	}
	c.blocks = c.blocks[:i+1]
	return c.blocks[i].StateSnapshot, nil
}

func (c *BlockCache) GetAllCdcMessages() []CdcMessage {
	var out []CdcMessage
	for _, b := range c.blocks {
		out = append(out, b.CdcMessages...)
	}
	return out
}

func (c *BlockCache) GetCdcMessages(height uint32) ([]CdcMessage, bool) {
	b, ok := c.GetBlockAtHeight(height)
	if !ok {
		return nil, false
	}
	return b.CdcMessages, true
}

// GetCdcMessagesRange concatenates records for cached blocks with
// start <= height <= end, in cache (height-ascending) order.
func (c *BlockCache) GetCdcMessagesRange(start, end uint32) []CdcMessage {
	var out []CdcMessage
	for _, b := range c.blocks {
		h := b.Metadata.Height
		if h >= start && h <= end {
			out = append(out, b.CdcMessages...)
		}
	}
	return out
}

func (c *BlockCache) Clear() { c.blocks = c.blocks[:0] }

func (c *BlockCache) Len() int { return len(c.blocks) }

func (c *BlockCache) IsEmpty() bool { return len(c.blocks) == 0 }

func (c *BlockCache) MaxSize() uint32 { return c.maxSize }

func (c *BlockCache) LowestHeight() (uint32, bool) {
	if len(c.blocks) == 0 {
		return 0, false
	}
	return c.blocks[0].Metadata.Height, true
}

func (c *BlockCache) HighestHeight() (uint32, bool) {
	if len(c.blocks) == 0 {
		return 0, false
	}
	return c.blocks[len(c.blocks)-1].Metadata.Height, true
}
