package preferences

type Tier string

const (
	TierFree Tier = "free"
	TierGlow Tier = "glow"
	TierEcho Tier = "echo"
)

// ParseTier accepts the three known tiers only.
func ParseTier(s string) (Tier, bool) {
	switch Tier(s) {
	case TierFree, TierGlow, TierEcho:
		return Tier(s), true
	}
	return TierFree, false
}

// Fields names the tier gated settings a user can see and edit.
type Fields struct {
	Background bool `json:"background"`
	Gradient   bool `json:"gradient"`
	Prefixes   bool `json:"prefixes"`
}

// FieldsVisibleFor only decides what is shown. Values of hidden fields are kept
// and saved unchanged.
func FieldsVisibleFor(tier Tier) Fields {
	switch tier {
	case TierEcho:
		return Fields{Background: true, Gradient: true, Prefixes: true}
	case TierGlow:
		return Fields{Background: true, Prefixes: true}
	default:
		return Fields{}
	}
}
