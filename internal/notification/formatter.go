package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/franksunye/fsoa-agent/internal/store"
)

// DefaultMaxListedOpportunities is the "5" hard-coded in the original
// source. It is a default, not a ceiling — callers resolve the real value
// from the escalation_max_listed config key and pass it explicitly
// (Open Questions, spec.md §9).
const DefaultMaxListedOpportunities = 5

// RenderOrgMessage formats the batched Standard/Violation message for one
// organization + notification type: header, up to maxListed opportunities,
// an overflow line, and a send-timestamp footer. maxListed <= 0 falls
// back to DefaultMaxListedOpportunities.
func RenderOrgMessage(orgName string, notifType store.NotificationType, opps []store.Opportunity, sentAt time.Time, maxListed int) string {
	limit := resolveMaxListed(maxListed)
	var b strings.Builder
	fmt.Fprintf(&b, "【%s】%s\n", notifType, orgName)

	n := len(opps)
	listed := opps
	if n > limit {
		listed = opps[:limit]
	}
	for _, o := range listed {
		fmt.Fprintf(&b, "- %s | %s | %s | elapsed %.1fh | threshold %.1fh\n", o.OrderNum, o.Customer, o.Supervisor, o.ElapsedBusinessHours, o.ViolationThreshold)
	}
	if n > limit {
		fmt.Fprintf(&b, "… %d more to handle\n", n-limit)
	}

	fmt.Fprintf(&b, "sent at %s", sentAt.Format("2006-01-02 15:04:05"))
	return b.String()
}

// RenderEscalationMessage formats the aggregated escalation message for
// one organization: 🚨 prefix, "escalation orders: K" count line, then the
// same order listing/footer shape as the standard message. mentionUsers is
// not written into the returned text; the webhook client appends the
// @mentions when it posts.
func RenderEscalationMessage(orgName string, opps []store.Opportunity, mentionUsers []string, sentAt time.Time, maxListed int) string {
	limit := resolveMaxListed(maxListed)
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 escalation | %s\n", orgName)
	fmt.Fprintf(&b, "escalation orders: %d\n", len(opps))

	n := len(opps)
	listed := opps
	if n > limit {
		listed = opps[:limit]
	}
	for _, o := range listed {
		fmt.Fprintf(&b, "- %s | %s | %s | elapsed %.1fh | threshold %.1fh\n", o.OrderNum, o.Customer, o.Supervisor, o.ElapsedBusinessHours, o.ViolationThreshold)
	}
	if n > limit {
		fmt.Fprintf(&b, "… %d more to handle\n", n-limit)
	}

	fmt.Fprintf(&b, "sent at %s", sentAt.Format("2006-01-02 15:04:05"))
	_ = mentionUsers // rendered by webhookclient.Post as @mentions, not inline text
	return b.String()
}

func resolveMaxListed(maxListed int) int {
	if maxListed > 0 {
		return maxListed
	}
	return DefaultMaxListedOpportunities
}
