package authz

import (
	"context"

	"github.com/google/uuid"
)

// conditionBusinessUnit is the only condition family evaluated today.
const conditionBusinessUnit = "business_unit_id"

// userBusinessUnitRef is the magic condition value binding the resource's
// business unit to the acting user's own.
const userBusinessUnitRef = "user.business_unit_id"

// evaluateConditions reports whether every recognized condition on a rule
// passes for the acting user and resource. Unrecognized condition keys pass:
// the grant model is fail-open by omission, inherited behavior that the
// known-gap test in service_test.go pins down until product tightens it.
func (s *Service) evaluateConditions(ctx context.Context, user UserInfo, conditions map[string]any, resource ResourceData) bool {
	for key, value := range conditions {
		switch key {
		case conditionBusinessUnit:
			if !s.evaluateBusinessUnit(ctx, user, value, resource) {
				return false
			}
		}
	}
	return true
}

// evaluateBusinessUnit applies the three business-unit grant cases in order,
// first match wins:
//
//  1. value "user.business_unit_id": both sides must carry a business unit
//     and they must be equal. A missing side denies, it does not skip.
//  2. value is a concrete business unit id: the user must hold an
//     assignment scoped to that exact unit and the resource must belong to it.
//  3. fallback: the user's own primary business unit equals the value and
//     the resource either carries no unit or the same one.
//
// Anything else, including a malformed condition value, denies.
func (s *Service) evaluateBusinessUnit(ctx context.Context, user UserInfo, value any, resource ResourceData) bool {
	raw, ok := value.(string)
	if !ok {
		return false
	}

	resourceBU := resource.BusinessUnit()
	userBU := ""
	if user.BusinessUnitID != nil {
		userBU = user.BusinessUnitID.String()
	}

	if raw == userBusinessUnitRef {
		return userBU != "" && resourceBU != "" && userBU == resourceBU
	}

	if buID, err := uuid.Parse(raw); err == nil {
		scoped, err := s.repo.HasAssignmentScopedTo(ctx, user.ID, buID, s.now())
		if err != nil {
			s.logError("assignment scope check", err)
		} else if scoped && resourceBU == raw {
			return true
		}
	}

	return userBU != "" && userBU == raw && (resourceBU == "" || resourceBU == userBU)
}
