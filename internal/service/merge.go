package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/kontoplan/kontoplan/internal/database"
	"github.com/kontoplan/kontoplan/internal/database/repository"
)

// MergeService collapses near-duplicate counterparties. Merging is always
// an explicit user action; imports never merge automatically.
type MergeService struct {
	DB             *sql.DB
	Counterparties *repository.CounterpartyRepo
	Transactions   *repository.TransactionRepo
	Patterns       *repository.PatternRepo
}

// Merge reassigns the source counterparty's transactions and pattern
// evidence to the target, then deletes the source. When both sides carry a
// pattern the evidence sets are combined under the target's pattern; a
// later detection run re-derives its amounts from the merged history.
func (s *MergeService) Merge(ctx context.Context, tenantID, sourceID, targetID string) error {
	if sourceID == targetID {
		return fmt.Errorf("cannot merge a counterparty into itself")
	}
	source, err := s.Counterparties.Get(ctx, tenantID, sourceID)
	if err != nil {
		return err
	}
	if source == nil {
		return fmt.Errorf("counterparty %s not found", sourceID)
	}
	target, err := s.Counterparties.Get(ctx, tenantID, targetID)
	if err != nil {
		return err
	}
	if target == nil {
		return fmt.Errorf("counterparty %s not found", targetID)
	}

	sourcePattern, err := s.Patterns.GetByCounterparty(ctx, tenantID, sourceID)
	if err != nil {
		return err
	}
	targetPattern, err := s.Patterns.GetByCounterparty(ctx, tenantID, targetID)
	if err != nil {
		return err
	}

	return database.WithTx(s.DB, func(tx *sql.Tx) error {
		if err := s.Transactions.Reassign(ctx, tx, tenantID, sourceID, targetID); err != nil {
			return err
		}
		switch {
		case sourcePattern != nil && targetPattern != nil:
			if err := s.Patterns.MoveEvidence(ctx, tx, sourcePattern.ID, targetPattern.ID); err != nil {
				return err
			}
			if err := s.Patterns.Delete(ctx, tx, tenantID, sourcePattern.ID); err != nil {
				return err
			}
		case sourcePattern != nil:
			if err := s.Patterns.ReassignCounterparty(ctx, tx, tenantID, sourcePattern.ID, targetID); err != nil {
				return err
			}
		}
		return s.Counterparties.Delete(ctx, tx, tenantID, sourceID)
	})
}

// MergeCandidate pairs two counterparties whose names are close enough to
// be worth a manual look.
type MergeCandidate struct {
	Source     repository.Counterparty
	Target     repository.Counterparty
	Similarity float64
}

// MergeCandidates lists counterparty pairs with near-identical names,
// highest similarity first. It only suggests; nothing is merged.
func (s *MergeService) MergeCandidates(ctx context.Context, tenantID string) ([]MergeCandidate, error) {
	all, err := s.Counterparties.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var out []MergeCandidate
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			sim := nameSimilarity(all[i].Name, all[j].Name)
			if sim < 0.7 {
				continue
			}
			out = append(out, MergeCandidate{Source: all[j], Target: all[i], Similarity: sim})
		}
	}
	// highest similarity first
	for i := 1; i < len(out); i++ {
		for k := i; k > 0 && out[k].Similarity > out[k-1].Similarity; k-- {
			out[k], out[k-1] = out[k-1], out[k]
		}
	}
	return out, nil
}

func nameSimilarity(a, b string) float64 {
	a = strings.ToUpper(strings.TrimSpace(a))
	b = strings.ToUpper(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}
