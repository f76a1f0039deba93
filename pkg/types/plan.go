package types

// Plan is the value stored in profiles.plan.
type Plan string

const (
	PlanOrange Plan = "Orange"
	PlanFree   Plan = "Free"
)

// Role is the app_role granted in user_roles.
type Role string

const (
	RoleOrange Role = "orange"
	RoleFree   Role = "free"
)

// RoleFor maps an entitlement plan to the role that grants it.
func RoleFor(p Plan) Role {
	if p == PlanOrange {
		return RoleOrange
	}
	return RoleFree
}
