// Package synchronizer implements the reorg-aware block synchronization
// state machine, grounded on the reference BlockSynchronizer: poll the
// upstream tip, advance block-by-block when it grows, and roll back to the
// common ancestor and re-advance when it shrinks.
package synchronizer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"reorgcdc/core"
	"reorgcdc/internal/jsonrpc"
	"reorgcdc/internal/sink"
)

// Synchronizer owns the upstream client, the transform runtime, the block
// cache, and the output sink, and drives them through poll/advance/reorg
// ticks. Unlike the reference's tokio::sync::Mutex-guarded fields reached
// through Arc clones, this holds its dependencies directly and serializes
// access with a single mutex instead, holding at most one lock at a time
// without needing separate locks per field (there is exactly one goroutine
// driving this state machine).
type Synchronizer struct {
	mu sync.Mutex

	client  jsonrpc.UpstreamClient
	runtime *core.Runtime
	sink    sink.Sink
	cache   *core.BlockCache
	logger  *logrus.Logger

	currentHeight   uint32
	running         bool
	pollingInterval time.Duration
}

// New constructs a Synchronizer with the reference's default 1-second
// polling interval and a starting height of 0 (meaning: adopt the upstream
// tip on the first tick).
func New(client jsonrpc.UpstreamClient, runtime *core.Runtime, sink sink.Sink, cacheSize uint32, logger *logrus.Logger) (*Synchronizer, error) {
	cache, err := core.NewBlockCache(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Synchronizer{
		client:          client,
		runtime:         runtime,
		sink:            sink,
		cache:           cache,
		logger:          logger,
		pollingInterval: time.Second,
	}, nil
}

// SetPollingInterval overrides the default tick cadence.
func (s *Synchronizer) SetPollingInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pollingInterval = d
}

// SetStartingHeight overrides the initial local tip used the first time
// Run polls the upstream; a non-zero value here skips the "adopt upstream
// tip" step.
func (s *Synchronizer) SetStartingHeight(height uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentHeight = height
}

// CurrentHeight returns the local tip height.
func (s *Synchronizer) CurrentHeight() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentHeight
}

// Stop requests the run loop to terminate after the in-flight tick
// completes; it does not abort an in-flight sink send.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

// Run executes poll -> advance/reorg -> sleep until Stop is called or ctx
// is cancelled.
func (s *Synchronizer) Run(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	if s.currentHeight == 0 {
		height, err := s.client.Height(ctx)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("%w: fetch starting height: %v", core.ErrUpstreamTransport, err)
		}
		s.currentHeight = height
		if s.logger != nil {
			s.logger.WithField("height", height).Info("starting at upstream tip")
		}
	}
	s.mu.Unlock()

	for {
		s.mu.Lock()
		running := s.running
		interval := s.pollingInterval
		s.mu.Unlock()
		if !running {
			return nil
		}

		if err := s.tick(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// tick runs a single poll->advance/reorg step.
func (s *Synchronizer) tick(ctx context.Context) error {
	upstream, err := s.client.Height(ctx)
	if err != nil {
		return fmt.Errorf("%w: poll upstream height: %v", core.ErrUpstreamTransport, err)
	}

	s.mu.Lock()
	local := s.currentHeight
	s.mu.Unlock()

	switch {
	case upstream == local:
		return nil
	case upstream > local:
		return s.advance(ctx, local, upstream)
	default:
		return s.reorg(ctx, upstream)
	}
}

// advance processes every block in (from, to] in order.
func (s *Synchronizer) advance(ctx context.Context, from, to uint32) error {
	if s.logger != nil {
		s.logger.WithField("from", from+1).WithField("to", to).Info("advancing")
	}
	for h := from + 1; h <= to; h++ {
		if err := s.processBlock(ctx, h); err != nil {
			return err
		}
		s.mu.Lock()
		s.currentHeight = h
		s.mu.Unlock()
	}
	return nil
}

// processBlock fetches a block's hash, runs it through the transform
// runtime, caches the result, and forwards its CDC records to the sink.
func (s *Synchronizer) processBlock(ctx context.Context, height uint32) error {
	hash, err := s.client.BlockHash(ctx, height)
	if err != nil {
		return fmt.Errorf("%w: fetch block hash at %d: %v", core.ErrUpstreamTransport, height, err)
	}

	result, err := s.runtime.ProcessBlock(height, hash)
	if err != nil {
		return err
	}

	meta := core.BlockMetadata{Height: height, Hash: hash, Timestamp: s.now()}
	s.mu.Lock()
	s.cache.AddBlock(meta, result.StateSnapshot, result.CdcMessages)
	s.mu.Unlock()

	if len(result.CdcMessages) > 0 {
		if err := s.sink.Send(result.CdcMessages); err != nil {
			return fmt.Errorf("%w: send cdc messages for block %d: %v", core.ErrSink, height, err)
		}
	}

	if s.logger != nil {
		s.logger.WithField("height", height).Debug("processed block")
	}
	return nil
}

// reorg handles a detected chain reorganization: find the common ancestor,
// roll the runtime and cache back to it, forward or synthesize inverse CDC
// records, then re-advance to the new upstream tip.
func (s *Synchronizer) reorg(ctx context.Context, newTip uint32) error {
	if s.logger != nil {
		s.logger.WithField("upstream", newTip).WithField("local", s.CurrentHeight()).Warn("chain reorganization detected")
	}

	candidates := make([]core.HeightHash, 0, newTip+1)
	for h := uint32(0); h <= newTip; h++ {
		hash, err := s.client.BlockHash(ctx, h)
		if err != nil {
			return fmt.Errorf("%w: fetch candidate hash at %d: %v", core.ErrUpstreamTransport, h, err)
		}
		candidates = append(candidates, core.HeightHash{Height: h, Hash: hash})
	}

	s.mu.Lock()
	ancestor, ok := s.cache.FindCommonAncestor(candidates)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: no common ancestor found within cache depth", core.ErrReorgHandling)
	}
	snapshot, ok := s.cache.GetStateSnapshot(ancestor)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: state snapshot not found for height %d", core.ErrReorgHandling, ancestor)
	}
	if s.logger != nil {
		s.logger.WithField("ancestor", ancestor).Info("found common ancestor")
	}

	ancestorHashStr := hashAtHeight(candidates, ancestor)

	s.runtime.RestoreState(snapshot)
	rollbackResult, err := s.runtime.Rollback(ancestor, ancestorHashStr)
	if err != nil {
		return err
	}

	inverses := rollbackResult.CdcMessages
	if len(inverses) == 0 {
		inverses, err = s.synthesizeInverses(ancestor, ancestorHashStr)
		if err != nil {
			return err
		}
	}
	if len(inverses) > 0 {
		if err := s.sink.Send(inverses); err != nil {
			return fmt.Errorf("%w: send inverse cdc messages: %v", core.ErrSink, err)
		}
	}

	s.mu.Lock()
	if _, err := s.cache.Rollback(ancestor); err != nil {
		s.mu.Unlock()
		return err
	}
	s.currentHeight = ancestor
	s.mu.Unlock()

	return s.advance(ctx, ancestor, newTip)
}

// synthesizeInverses derives compensating records for every cached block
// strictly above ancestor, in reverse block order, when the guest's
// rollback export emitted none itself.
func (s *Synchronizer) synthesizeInverses(ancestor uint32, newHash string) ([]core.CdcMessage, error) {
	s.mu.Lock()
	highest, ok := s.cache.HighestHeight()
	s.mu.Unlock()
	if !ok || highest <= ancestor {
		return nil, nil
	}

	var out []core.CdcMessage
	for h := highest; h > ancestor; h-- {
		s.mu.Lock()
		msgs, ok := s.cache.GetCdcMessages(h)
		s.mu.Unlock()
		if !ok || len(msgs) == 0 {
			continue
		}
		inv, err := core.InverseBatch(msgs, ancestor, newHash, s.now())
		if err != nil {
			return nil, fmt.Errorf("%w: synthesize inverse for block %d: %v", core.ErrReorgHandling, h, err)
		}
		out = append(out, inv...)
	}
	return out, nil
}

func (s *Synchronizer) now() time.Time { return time.Now().UTC() }

func hashAtHeight(candidates []core.HeightHash, height uint32) string {
	for _, c := range candidates {
		if c.Height == height {
			return c.Hash
		}
	}
	return ""
}
