package campaign

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// SuppressionLookupPolicy names the behavior when the tag lookup itself
// fails.
type SuppressionLookupPolicy int

const (
	// AllowSendOnLookupError fails open: a transient lookup error does not
	// block a legitimate send. This favors delivery over strict compliance.
	AllowSendOnLookupError SuppressionLookupPolicy = iota
	// BlockSendOnLookupError fails closed.
	BlockSendOnLookupError
)

// SuppressionFilter decides whether a destination number carries an
// opt-out/DNC tag and must be skipped.
type SuppressionFilter struct {
	contacts ContactRepository
	policy   SuppressionLookupPolicy
}

func NewSuppressionFilter(contacts ContactRepository, policy SuppressionLookupPolicy) *SuppressionFilter {
	return &SuppressionFilter{contacts: contacts, policy: policy}
}

// IsSuppressed reports whether any of the contact's tags matches the
// tenant's suppression list, case-insensitively. Unknown numbers are not
// suppressed.
func (f *SuppressionFilter) IsSuppressed(ctx context.Context, tenantID int64, number string, suppressionTags []string) bool {
	tags, err := f.contacts.TagsByNumber(ctx, tenantID, number)
	if err != nil {
		zap.L().Warn("suppression lookup failed",
			zap.Int64("tenant_id", tenantID),
			zap.String("number", number),
			zap.Error(err))
		return f.policy == BlockSendOnLookupError
	}
	for _, tag := range tags {
		for _, blocked := range suppressionTags {
			if strings.EqualFold(strings.TrimSpace(tag), strings.TrimSpace(blocked)) {
				return true
			}
		}
	}
	return false
}
