package privacy

import "strings"

const (
	ComponentTypeBidder    = "bidder"
	ComponentTypeAnalytics = "analytics"
	ComponentTypeGeneral   = "general"
)

// Component identifies the party an activity rule is evaluated against.
type Component struct {
	Type string
	Name string
}

func (c Component) MatchesName(v string) bool {
	return strings.EqualFold(c.Name, v)
}

func (c Component) MatchesType(v string) bool {
	return strings.EqualFold(c.Type, v)
}
