package analytics

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/franksunye/fsoa-agent/internal/store"
)

// ToOpportunities converts the wire RawOpportunity records into the
// domain Opportunity type, parsing CreateTime in the given business
// timezone. A record with a malformed CreateTime is dropped with a
// warning rather than failing the whole batch (§6).
func ToOpportunities(raws []RawOpportunity, loc *time.Location, log *logrus.Logger, now time.Time) []store.Opportunity {
	out := make([]store.Opportunity, 0, len(raws))
	for _, r := range raws {
		ct, err := parseCreateTime(r.CreateTime, loc)
		if err != nil {
			if log != nil {
				log.WithFields(logrus.Fields{"order_num": r.OrderNum, "create_time": r.CreateTime}).
					Warn("dropping opportunity with malformed createTime")
			}
			continue
		}
		out = append(out, store.Opportunity{
			OrderNum:    r.OrderNum,
			Customer:    r.Name,
			Address:     r.Address,
			Supervisor:  r.SupervisorName,
			OrgName:     r.OrgName,
			Status:      store.OpportunityStatus(r.OrderStatus),
			CreateTime:  ct,
			LastUpdated: now,
		})
	}
	return out
}

func parseCreateTime(raw string, loc *time.Location) (time.Time, error) {
	layouts := []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}
	var firstErr error
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
