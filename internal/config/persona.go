package config

import "strings"

// Reasoning roles that can be bound to a model under reasoning.roles.
const (
	RoleBull      = "bull"
	RoleBear      = "bear"
	RoleModerator = "moderator"
	RoleProposer  = "proposer"
	RoleRisk      = "risk"
	RoleAuthority = "authority"
	RoleProducer  = "producer"
)

// NormalizeRole 将角色别名归一化；未知角色返回空串。
func NormalizeRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	switch r {
	case "bull", "bullish", "bull_researcher", "optimist":
		return RoleBull
	case "bear", "bearish", "bear_researcher", "skeptic":
		return RoleBear
	case "moderator", "judge", "research_manager":
		return RoleModerator
	case "proposer", "trader", "proposal":
		return RoleProposer
	case "risk", "risk_manager", "risk_gate":
		return RoleRisk
	case "authority", "cio", "final", "final_authority":
		return RoleAuthority
	case "producer", "analyst", "producers":
		return RoleProducer
	default:
		return ""
	}
}
