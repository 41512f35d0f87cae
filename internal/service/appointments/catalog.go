package appointments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonakson/beautyconnect/internal/booking"
	"github.com/jonakson/beautyconnect/internal/domain"
	"github.com/jonakson/beautyconnect/internal/rules"
)

// SaveBusiness creates or updates a business after checking its hours, zone
// and rule overrides.
func (s *Service) SaveBusiness(ctx context.Context, b domain.Business) (domain.Business, error) {
	b.Name = strings.TrimSpace(b.Name)
	if b.Name == "" {
		return domain.Business{}, validationError("name is required")
	}
	if b.Timezone == "" {
		b.Timezone = s.engine.Policy().DefaultTimezone
	}
	if _, err := time.LoadLocation(b.Timezone); err != nil {
		return domain.Business{}, validationError("invalid timezone")
	}
	policy := s.engine.Policy()
	if b.Tier == "" {
		b.Tier = "free"
	}
	if policy.Tiers != nil {
		if _, ok := policy.Tiers[b.Tier]; !ok {
			return domain.Business{}, validationError("unknown tier")
		}
	}
	if err := b.Hours.Validate(); err != nil {
		return domain.Business{}, validationError("hours: " + err.Error())
	}
	if err := rules.Resolve(policy.Defaults, b.Rules, rules.Overrides{}).Validate(); err != nil {
		return domain.Business{}, validationError("rules: " + err.Error())
	}
	return s.store.SaveBusiness(ctx, b)
}

// SaveService checks the duration against the resolved slot grid and the
// tier's service allowance.
func (s *Service) SaveService(ctx context.Context, svc domain.Service) (domain.Service, error) {
	if err := requireID(svc.BusinessID, "business_id"); err != nil {
		return domain.Service{}, err
	}
	svc.Name = strings.TrimSpace(svc.Name)
	if svc.Name == "" {
		return domain.Service{}, validationError("name is required")
	}
	if svc.PriceCents < 0 {
		return domain.Service{}, validationError("price must not be negative")
	}

	state, err := s.catalog(ctx, svc.BusinessID)
	if err != nil {
		return domain.Service{}, err
	}
	policy := s.engine.Policy()
	rs := policy.RulesFor(state, svc)
	if err := rs.Validate(); err != nil {
		return domain.Service{}, validationError("rules: " + err.Error())
	}
	if err := svc.Validate(rs); err != nil {
		return domain.Service{}, validationError(err.Error())
	}
	if svc.Currency == "" {
		svc.Currency = state.Business.Currency
	}

	if _, exists := state.Service(svc.ID); !exists && policy.Tiers != nil {
		tier := policy.Tiers.Lookup(state.Business.Tier)
		if tier.MaxServices > 0 && len(state.Services) >= tier.MaxServices {
			return domain.Service{}, booking.Rejected(booking.ReasonTierLimitExceeded, fmt.Sprintf("%s tier allows %d services", tier.Name, tier.MaxServices))
		}
	}
	return s.store.SaveService(ctx, svc)
}

// SaveStaff requires the staff member's hours to sit inside business hours
// and every listed service to belong to the business.
func (s *Service) SaveStaff(ctx context.Context, st domain.Staff) (domain.Staff, error) {
	if err := requireID(st.BusinessID, "business_id"); err != nil {
		return domain.Staff{}, err
	}
	st.Name = strings.TrimSpace(st.Name)
	if st.Name == "" {
		return domain.Staff{}, validationError("name is required")
	}
	if err := st.Hours.Validate(); err != nil {
		return domain.Staff{}, validationError("hours: " + err.Error())
	}

	state, err := s.catalog(ctx, st.BusinessID)
	if err != nil {
		return domain.Staff{}, err
	}
	if err := st.Hours.Within(state.Business.Hours); err != nil {
		return domain.Staff{}, validationError("hours: " + err.Error())
	}
	seen := make(map[uuid.UUID]struct{}, len(st.ServiceIDs))
	ids := make([]uuid.UUID, 0, len(st.ServiceIDs))
	for _, id := range st.ServiceIDs {
		if _, ok := state.Service(id); !ok {
			return domain.Staff{}, validationError("unknown service " + id.String())
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	st.ServiceIDs = ids

	policy := s.engine.Policy()
	if _, exists := state.StaffMember(st.ID); !exists && policy.Tiers != nil {
		tier := policy.Tiers.Lookup(state.Business.Tier)
		if tier.MaxStaff > 0 && len(state.Staff) >= tier.MaxStaff {
			return domain.Staff{}, booking.Rejected(booking.ReasonTierLimitExceeded, fmt.Sprintf("%s tier allows %d staff members", tier.Name, tier.MaxStaff))
		}
	}
	return s.store.SaveStaff(ctx, st)
}
