package campaign

import (
	"context"

	"github.com/pkg/errors"
	"github.com/zaptalk/zapcampaigns/internal/domain"
	"go.uber.org/zap"
)

// PrepareContact resolves one contact's outbound content and creates (or
// refreshes) its shipping record. A random non-empty message variant is
// picked, and independently a random confirmation variant; variable
// substitution runs against the list item merged with any CRM contact found
// by number. Suppressed numbers are closed out immediately and never reach
// the dispatch stage.
func (s *Service) PrepareContact(ctx context.Context, campaignID, itemID int64) error {
	camp, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return errors.Wrap(err, "prepare: load campaign")
	}
	switch camp.Status {
	case domain.CampaignStatusCancelled, domain.CampaignStatusFinished:
		return nil
	}

	item, err := s.contacts.GetItem(ctx, itemID)
	if err != nil {
		return errors.Wrap(err, "prepare: load contact item")
	}

	variants, slots := camp.MessageVariants()
	if len(variants) == 0 {
		return errors.Errorf("prepare: campaign %d has no message variants", campaignID)
	}
	pick := s.rnd(len(variants))
	variantSlot := slots[pick]

	var confirmationTemplate string
	if confirmations := camp.ConfirmationVariants(); len(confirmations) > 0 {
		confirmationTemplate = confirmations[s.rnd(len(confirmations))]
	}

	st := LoadDispatchSettings(s.settings, camp.TenantId)

	// CRM enrichment is best-effort; an unknown number still gets the list
	// item's own fields.
	crm, err := s.contacts.FindByNumber(ctx, camp.TenantId, item.Number)
	if err != nil && !errors.Is(err, ErrNotFound) {
		zap.L().Warn("prepare: contact enrichment lookup failed",
			zap.String("number", item.Number),
			zap.Error(err))
	}
	view := NewContactView(item, crm)
	now := s.now()

	message := ResolveVariables(variants[pick], st.CustomVariables, view, now)
	confirmation := ""
	if confirmationTemplate != "" {
		confirmation = ResolveVariables(confirmationTemplate, st.CustomVariables, view, now)
	}

	rec, err := s.shippings.FindByCampaignAndContact(ctx, campaignID, item.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return errors.Wrap(err, "prepare: find shipping")
	}
	if rec != nil && (rec.DeliveredAt != nil || rec.ConfirmationRequestedAt != nil) {
		// Already acted on; re-preparation must not clobber delivery state.
		return nil
	}
	if rec == nil {
		rec = &domain.CampaignShipping{
			TenantId:   camp.TenantId,
			CampaignId: camp.ID,
			ContactId:  item.ID,
		}
	}
	rec.Number = item.Number
	rec.IsGroup = item.IsGroup
	rec.Message = message
	rec.ConfirmationMessage = confirmation
	rec.MessageVariant = variantSlot
	rec.Status = domain.ShippingStatusPending

	if s.suppression.IsSuppressed(ctx, camp.TenantId, item.Number, st.SuppressionTags) {
		// Closed out with no send so the campaign can still complete; no
		// dispatch job is created.
		if err := s.shippings.Save(ctx, rec); err != nil {
			return errors.Wrap(err, "prepare: save shipping")
		}
		if err := s.shippings.MarkSuppressed(ctx, rec.ID, now); err != nil {
			return errors.Wrap(err, "prepare: mark suppressed")
		}
		zap.L().Info("contact suppressed at preparation",
			zap.Int64("campaign_id", campaignID),
			zap.String("number", item.Number))
		return s.CheckCampaignCompletion(ctx, campaignID)
	}

	if err := s.shippings.Save(ctx, rec); err != nil {
		return errors.Wrap(err, "prepare: save shipping")
	}

	handle, err := s.queue.Enqueue(JobShippingDispatch, DispatchPayload{
		CampaignID: camp.ID,
		ShippingID: rec.ID,
	}, 0)
	if err != nil {
		return errors.Wrap(err, "prepare: enqueue dispatch")
	}
	// The fresh handle supersedes whatever job was scheduled before.
	if rec.JobHandle != 0 {
		s.queue.Cancel(rec.JobHandle)
	}
	return errors.Wrap(s.shippings.UpdateJobHandle(ctx, rec.ID, handle), "prepare: store job handle")
}
