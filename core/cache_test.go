package core

import "testing"

func meta(h uint32, hash string) BlockMetadata {
	return BlockMetadata{Height: h, Hash: hash}
}

func TestBlockCacheFIFOEviction(t *testing.T) {
	c, err := NewBlockCache(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.AddBlock(meta(1, "a"), NewTransformState(), nil)
	c.AddBlock(meta(2, "b"), NewTransformState(), nil)
	c.AddBlock(meta(3, "c"), NewTransformState(), nil)

	if c.Len() != 2 {
		t.Fatalf("expected len 2, got %d", c.Len())
	}
	if lo, _ := c.LowestHeight(); lo != 2 {
		t.Fatalf("expected lowest height 2, got %d", lo)
	}
	if hi, _ := c.HighestHeight(); hi != 3 {
		t.Fatalf("expected highest height 3, got %d", hi)
	}
	if _, ok := c.GetBlockAtHeight(1); ok {
		t.Fatalf("expected height 1 to have been evicted")
	}
}

func TestBlockCacheNewRejectsZeroSize(t *testing.T) {
	if _, err := NewBlockCache(0); err == nil {
		t.Fatalf("expected error for zero max size")
	}
}

func TestBlockCacheRollbackIdempotent(t *testing.T) {
	c, _ := NewBlockCache(6)
	c.AddBlock(meta(1, "a"), NewTransformState(), nil)
	c.AddBlock(meta(2, "b"), NewTransformState(), nil)
	c.AddBlock(meta(3, "c"), NewTransformState(), nil)

	if _, err := c.Rollback(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected len 2 after rollback, got %d", c.Len())
	}

	if _, err := c.Rollback(2); err != nil {
		t.Fatalf("unexpected error on repeat rollback: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected repeat rollback to be a no-op, got len %d", c.Len())
	}

	if hi, _ := c.HighestHeight(); hi != 2 {
		t.Fatalf("rolling back to current top should be a no-op, got top %d", hi)
	}
}

func TestBlockCacheRollbackMissingHeight(t *testing.T) {
	c, _ := NewBlockCache(6)
	c.AddBlock(meta(1, "a"), NewTransformState(), nil)
	if _, err := c.Rollback(5); err == nil {
		t.Fatalf("expected ErrReorgHandling for missing height")
	}
}

func TestFindCommonAncestor(t *testing.T) {
	c, _ := NewBlockCache(6)
	c.AddBlock(meta(1, "a"), NewTransformState(), nil)
	c.AddBlock(meta(2, "b"), NewTransformState(), nil)
	c.AddBlock(meta(3, "c"), NewTransformState(), nil)

	ancestor, ok := c.FindCommonAncestor([]HeightHash{{1, "a"}, {2, "b'"}, {3, "c'"}})
	if !ok || ancestor != 1 {
		t.Fatalf("expected ancestor 1, got %d (ok=%v)", ancestor, ok)
	}

	ancestor, ok = c.FindCommonAncestor([]HeightHash{{1, "a"}, {2, "b"}, {3, "c"}})
	if !ok || ancestor != 3 {
		t.Fatalf("expected ancestor 3, got %d (ok=%v)", ancestor, ok)
	}

	_, ok = c.FindCommonAncestor([]HeightHash{{1, "a'"}, {2, "b'"}})
	if ok {
		t.Fatalf("expected no common ancestor")
	}
}

func TestGetCdcMessagesRange(t *testing.T) {
	c, _ := NewBlockCache(6)
	m1 := CdcMessage{Header: CdcHeader{BlockHeight: 1}}
	m2 := CdcMessage{Header: CdcHeader{BlockHeight: 2}}
	m3 := CdcMessage{Header: CdcHeader{BlockHeight: 3}}
	c.AddBlock(meta(1, "a"), NewTransformState(), []CdcMessage{m1})
	c.AddBlock(meta(2, "b"), NewTransformState(), []CdcMessage{m2})
	c.AddBlock(meta(3, "c"), NewTransformState(), []CdcMessage{m3})

	got := c.GetCdcMessagesRange(2, 3)
	if len(got) != 2 || got[0].Header.BlockHeight != 2 || got[1].Header.BlockHeight != 3 {
		t.Fatalf("unexpected range result: %+v", got)
	}
}
