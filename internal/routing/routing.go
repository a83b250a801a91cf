// Package routing decides which team members participate in a turn based
// on the configured coordination mode and the user prompt.
package routing

import "strings"

// Coordination modes. Unknown values fail open to full delegation so a
// misconfigured roster never silently loses capability.
const (
	ModeDirectOnly           = "direct_only"
	ModeAlwaysDelegate       = "always_delegate"
	ModeCoordinatedRAG       = "coordinated_rag"
	ModeDelegateOnComplexity = "delegate_on_complexity"
)

// Member is the routing view of one configured team member.
type Member struct {
	ID     string
	Skills []string
}

// SelectMembers returns the ids of the members that should participate in
// a turn, in roster order. It is a pure function of its inputs.
func SelectMembers(mode, prompt string, members []Member) []string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeDirectOnly:
		return []string{}
	case ModeDelegateOnComplexity:
		return matchBySkill(prompt, members)
	default:
		// Unset, always_delegate, coordinated_rag, and anything
		// unrecognized delegate to the full roster.
		return allIDs(members)
	}
}

// matchBySkill selects members whose skill keywords appear in the prompt,
// compared case-insensitively. An empty prompt selects nobody.
func matchBySkill(prompt string, members []Member) []string {
	prompt = strings.ToLower(strings.TrimSpace(prompt))
	if prompt == "" {
		return []string{}
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		for _, skill := range m.Skills {
			skill = strings.ToLower(strings.TrimSpace(skill))
			if skill == "" {
				continue
			}
			if strings.Contains(prompt, skill) {
				ids = append(ids, m.ID)
				break
			}
		}
	}
	return ids
}

func allIDs(members []Member) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return ids
}
