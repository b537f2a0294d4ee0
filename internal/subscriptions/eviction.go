package subscriptions

import (
	"context"
	"fmt"
	"sort"

	"github.com/zonecraft/portal-backend/internal/billing"
	"github.com/zonecraft/portal-backend/pkg/db/models"
)

// evictDomains brings a user's domain inventory back under the target quota.
// The external inventory is authoritative for what must be deleted upstream,
// because local rows and hosted zones can already have drifted. Every
// per-domain outcome is recorded independently; the saga never fails as a
// whole, so re-running the change workflow is the recovery path for any
// reported failure.
func (s *service) evictDomains(
	ctx context.Context,
	repo billing.Repository,
	externalAccountID string,
	keep []models.ManagedDomain,
	remove []models.ManagedDomain,
) *EvictionResult {
	result := &EvictionResult{}

	keptNames := make(map[string]bool, len(keep))
	for _, domain := range keep {
		keptNames[domain.Name] = true
	}

	outcomes := map[string]string{} // name -> "" (success) or failure reason

	zones, listErr := s.dns.ListZones(ctx, externalAccountID)
	if listErr != nil {
		s.logger.Error(ctx, "eviction could not list external zones", listErr)
		for _, domain := range remove {
			if domain.ExternalID != nil {
				outcomes[domain.Name] = fmt.Sprintf("list zones: %v", listErr)
			}
		}
	} else {
		for _, zone := range zones {
			if keptNames[zone.Name] {
				continue
			}
			if err := s.dns.DeleteZone(ctx, zone.ID); err != nil {
				outcomes[zone.Name] = err.Error()
				continue
			}
			outcomes[zone.Name] = ""
		}
	}

	// Local rows go independently of the external outcome; a stuck zone
	// upstream must not leave the quota check permanently violated.
	for _, domain := range remove {
		if err := repo.DeleteDomainByID(ctx, domain.ID); err != nil {
			result.Failed = append(result.Failed, EvictionFailure{
				Name:  domain.Name,
				Error: fmt.Sprintf("local delete: %v", err),
			})
		}
		if _, seen := outcomes[domain.Name]; !seen && domain.ExternalID == nil {
			result.SkippedNoExternalID = append(result.SkippedNoExternalID, domain.Name)
		}
	}

	for name, reason := range outcomes {
		if reason == "" {
			result.Successful = append(result.Successful, name)
		} else {
			result.Failed = append(result.Failed, EvictionFailure{Name: name, Error: reason})
		}
	}

	sort.Strings(result.Successful)
	sort.Strings(result.SkippedNoExternalID)
	sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i].Name < result.Failed[j].Name })
	return result
}
