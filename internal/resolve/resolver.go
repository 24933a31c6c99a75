package resolve

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brich-labs/marketwatch/internal/model"
	"github.com/brich-labs/marketwatch/internal/store"
)

// ErrNeedsHumanReview is returned when an automated proposal hits a manually
// verified reference. The proposal is never applied; the caller surfaces it
// for review instead.
var ErrNeedsHumanReview = eris.New("resolve: reference is manually verified, proposal needs human review")

const lockStripes = 64

// Resolver owns the matching reference table. Proposals for the same vendor
// item id are serialized through a striped lock so concurrent evidence cannot
// race past the tier-monotonicity rule.
type Resolver struct {
	store store.Store
	log   *zap.Logger

	locks [lockStripes]sync.Mutex
}

// Proposal is one piece of identity evidence for a vendor item id. Barcode
// and PartNumber are raw values; normalization happens inside the resolver.
type Proposal struct {
	Barcode    string
	PartNumber string
	Tier       model.MatchTier
	Note       string
}

func NewResolver(st store.Store) *Resolver {
	return &Resolver{
		store: st,
		log:   zap.L().With(zap.String("component", "resolver")),
	}
}

// Resolve looks up the reference for a vendor item id. A reference whose
// identifiers normalized to null is still resolved; only a never-seen id
// returns store.ErrReferenceNotFound.
func (r *Resolver) Resolve(ctx context.Context, vendorItemID string) (*model.MatchingReference, error) {
	return r.store.GetReference(ctx, vendorItemID)
}

// RecordFirstSight registers a vendor item id on its first appearance in a
// snapshot. Existing references are left untouched.
func (r *Resolver) RecordFirstSight(ctx context.Context, vendorItemID, category, name string, seenAt time.Time) error {
	r.lock(vendorItemID)
	defer r.unlock(vendorItemID)

	_, err := r.store.GetReference(ctx, vendorItemID)
	if err == nil {
		return nil
	}
	if !eris.Is(err, store.ErrReferenceNotFound) {
		return err
	}

	now := time.Now().UTC()
	return r.store.PutReference(ctx, &model.MatchingReference{
		VendorItemID:  vendorItemID,
		FirstCategory: category,
		FirstName:     name,
		FirstSeenAt:   seenAt.UTC(),
		Tier:          model.TierUnverified,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

// ProposeMatch applies identity evidence to a reference under the tier
// policy: a fresh id is created at the proposed tier; evidence at or above
// the stored tier overwrites identifiers and raises the tier, preserving the
// prior values in notes, though a proposal whose identifiers all normalize to
// null never raises the tier; weaker evidence, conflicting or merely
// additive, is recorded in notes and never applied. Manually verified
// references reject all automated proposals.
func (r *Resolver) ProposeMatch(ctx context.Context, vendorItemID string, p Proposal) (*model.MatchingReference, error) {
	if !p.Tier.Valid() {
		return nil, eris.Errorf("resolve: invalid tier %q", p.Tier)
	}

	barcode := NormalizeBarcode(p.Barcode)
	partNumber := NormalizePartNumber(p.PartNumber)

	r.lock(vendorItemID)
	defer r.unlock(vendorItemID)

	now := time.Now().UTC()

	existing, err := r.store.GetReference(ctx, vendorItemID)
	if eris.Is(err, store.ErrReferenceNotFound) {
		ref := &model.MatchingReference{
			VendorItemID: vendorItemID,
			FirstSeenAt:  now,
			Barcode:      barcode,
			PartNumber:   partNumber,
			Tier:         p.Tier,
			Notes:        appendNote("", now, p.Note),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := r.store.PutReference(ctx, ref); err != nil {
			return nil, err
		}
		r.log.Debug("reference created",
			zap.String("vendor_item_id", vendorItemID),
			zap.String("tier", string(p.Tier)),
		)
		return ref, nil
	}
	if err != nil {
		return nil, err
	}

	if existing.ManuallyVerified {
		return existing, eris.Wrapf(ErrNeedsHumanReview, "vendor item %s", vendorItemID)
	}

	if p.Tier.AtLeast(existing.Tier) {
		return r.applyUpgrade(ctx, existing, barcode, partNumber, p, now)
	}

	switch {
	case conflicts(existing, barcode, partNumber):
		existing.Notes = appendNote(existing.Notes, now, fmt.Sprintf(
			"conflicting %s evidence rejected: barcode=%s part=%s (%s)",
			p.Tier, orDash(barcode), orDash(partNumber), p.Note,
		))
		existing.UpdatedAt = now
		if err := r.store.PutReference(ctx, existing); err != nil {
			return nil, err
		}
		r.log.Info("weaker conflicting proposal recorded",
			zap.String("vendor_item_id", vendorItemID),
			zap.String("stored_tier", string(existing.Tier)),
			zap.String("proposed_tier", string(p.Tier)),
		)
	case additive(existing, barcode, partNumber):
		existing.Notes = appendNote(existing.Notes, now, fmt.Sprintf(
			"unapplied %s evidence: barcode=%s part=%s (%s)",
			p.Tier, orDash(barcode), orDash(partNumber), p.Note,
		))
		existing.UpdatedAt = now
		if err := r.store.PutReference(ctx, existing); err != nil {
			return nil, err
		}
	}
	return existing, nil
}

// Verify marks a reference as manually confirmed. The tier is raised to high
// and the reference becomes immune to automated proposals.
func (r *Resolver) Verify(ctx context.Context, vendorItemID, note string) (*model.MatchingReference, error) {
	r.lock(vendorItemID)
	defer r.unlock(vendorItemID)

	ref, err := r.store.GetReference(ctx, vendorItemID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ref.ManuallyVerified = true
	ref.Tier = model.TierHigh
	ref.Notes = appendNote(ref.Notes, now, "manually verified: "+note)
	ref.UpdatedAt = now
	if err := r.store.PutReference(ctx, ref); err != nil {
		return nil, err
	}
	return ref, nil
}

func (r *Resolver) applyUpgrade(ctx context.Context, ref *model.MatchingReference, barcode, partNumber *string, p Proposal, now time.Time) (*model.MatchingReference, error) {
	if barcode != nil && !same(ref.Barcode, barcode) {
		if ref.Barcode != nil {
			ref.Notes = appendNote(ref.Notes, now, "barcode replaced, was "+*ref.Barcode)
		}
		ref.Barcode = barcode
	}
	if partNumber != nil && !same(ref.PartNumber, partNumber) {
		if ref.PartNumber != nil {
			ref.Notes = appendNote(ref.Notes, now, "part number replaced, was "+*ref.PartNumber)
		}
		ref.PartNumber = partNumber
	}
	// Identifier-free evidence never raises the tier.
	if p.Tier.Rank() > ref.Tier.Rank() && (barcode != nil || partNumber != nil) {
		ref.Tier = p.Tier
	}
	if p.Note != "" {
		ref.Notes = appendNote(ref.Notes, now, p.Note)
	}
	ref.UpdatedAt = now

	if err := r.store.PutReference(ctx, ref); err != nil {
		return nil, err
	}
	r.log.Debug("reference upgraded",
		zap.String("vendor_item_id", ref.VendorItemID),
		zap.String("tier", string(ref.Tier)),
	)
	return ref, nil
}

func (r *Resolver) lock(vendorItemID string) {
	r.locks[stripe(vendorItemID)].Lock()
}

func (r *Resolver) unlock(vendorItemID string) {
	r.locks[stripe(vendorItemID)].Unlock()
}

func stripe(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32() % lockStripes
}

// additive reports whether the proposal carries an identifier the reference
// does not have yet.
func additive(ref *model.MatchingReference, barcode, partNumber *string) bool {
	if barcode != nil && ref.Barcode == nil {
		return true
	}
	if partNumber != nil && ref.PartNumber == nil {
		return true
	}
	return false
}

// conflicts reports whether proposed identifiers contradict stored ones. A
// proposal that only confirms or adds nothing is not a conflict.
func conflicts(ref *model.MatchingReference, barcode, partNumber *string) bool {
	if barcode != nil && ref.Barcode != nil && *barcode != *ref.Barcode {
		return true
	}
	if partNumber != nil && ref.PartNumber != nil && *partNumber != *ref.PartNumber {
		return true
	}
	return false
}

func same(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func appendNote(notes string, at time.Time, msg string) string {
	if msg == "" {
		return notes
	}
	entry := "[" + at.Format(time.RFC3339) + "] " + msg
	if notes == "" {
		return entry
	}
	return notes + " | " + entry
}
