package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"solana-snipe-engine/internal/raydium"
	"solana-snipe-engine/internal/solana"
	"solana-snipe-engine/internal/storage"
)

// BackfillOptions bounds a backfill run.
type BackfillOptions struct {
	PageSize int // Default: 1000, the getSignaturesForAddress maximum
	// Limit caps the number of signatures scanned. 0 scans back to the saved progress.
	Limit int
}

// BackfillResult contains statistics from a backfill run.
type BackfillResult struct {
	Signatures int // signatures listed
	Initialize int // initialize transactions among them
	Pools      int // pools cached
	Failed     int // initialize transactions that could not be processed
}

// Backfill scans AMM program history from the newest signature back to the
// saved progress, then processes it oldest first so progress only moves forward.
func (s *Scanner) Backfill(ctx context.Context, opts BackfillOptions) (*BackfillResult, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > 1000 {
		pageSize = 1000
	}

	until := ""
	if s.progress != nil {
		p, err := s.progress.GetLastProcessed(ctx)
		switch {
		case err == nil:
			until = p.Signature
		case errors.Is(err, storage.ErrNotFound):
		default:
			return nil, fmt.Errorf("get discovery progress: %w", err)
		}
	}

	sigs, err := s.listSignatures(ctx, until, pageSize, opts.Limit)
	if err != nil {
		return nil, err
	}

	result := &BackfillResult{Signatures: len(sigs)}
	s.log.WithFields(logrus.Fields{"signatures": len(sigs), "until": until}).Info("backfill started")

	for i := len(sigs) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		sig := sigs[i]
		if sig.Err != nil {
			s.saveProgress(ctx, sig.Slot, sig.Signature)
			continue
		}

		tx, err := s.fetchTransaction(ctx, sig.Signature)
		if err != nil {
			// Progress stays put so the next run retries from here.
			s.metrics.PoolsRejected.WithLabelValues(RejectTxUnavailable).Inc()
			result.Failed++
			return result, err
		}
		if tx.Meta == nil || !IsPoolInit(tx.Meta.LogMessages) {
			s.saveProgress(ctx, sig.Slot, sig.Signature)
			continue
		}

		result.Initialize++
		pools, err := s.processTransaction(ctx, tx)
		result.Pools += len(pools)
		if err != nil {
			result.Failed++
			return result, err
		}
		s.saveProgress(ctx, sig.Slot, sig.Signature)
	}

	s.log.WithFields(logrus.Fields{
		"signatures": result.Signatures,
		"initialize": result.Initialize,
		"pools":      result.Pools,
	}).Info("backfill finished")
	return result, nil
}

// listSignatures pages newest to oldest until the saved signature, an empty page or limit.
func (s *Scanner) listSignatures(ctx context.Context, until string, pageSize, limit int) ([]solana.SignatureInfo, error) {
	var (
		out    []solana.SignatureInfo
		before string
	)
	for {
		size := pageSize
		if limit > 0 && limit-len(out) < size {
			size = limit - len(out)
		}
		if size <= 0 {
			return out, nil
		}

		page, err := s.rpc.GetSignaturesForAddress(ctx, raydium.AmmV4ProgramID, &solana.SignaturesOpts{
			Before: before,
			Until:  until,
			Limit:  size,
		})
		if err != nil {
			return out, fmt.Errorf("get signatures before %q: %w", before, err)
		}
		out = append(out, page...)
		if len(page) < size {
			return out, nil
		}
		before = page[len(page)-1].Signature
	}
}
