package grid

// Action is the coordinator's per-cycle tuning instruction, spec.md §4.7's
// enumerated actions 0..9.
type Action int

const (
	ActionNone              Action = 0
	ActionIncreaseLevels    Action = 1
	ActionDecreaseLevels    Action = 2
	ActionIncreaseSpacing   Action = 3
	ActionDecreaseSpacing   Action = 4
	ActionBiasBullish       Action = 5
	ActionBiasBearish       Action = 6
	ActionResetAndRecenter  Action = 7
	ActionAggressiveBullish Action = 8
	ActionAggressiveBearish Action = 9
)

// params is the mutable grid parameter set an action adjusts before the
// next ladder rebuild.
type params struct {
	levels          int
	spacingFraction float64
	directionBias   int
	notionalBoost   float64 // multiplies AllocatedUSD for aggressive actions
}

// applyAction adjusts params per the tuning action, clamped to
// [MinLevels, MaxLevels]. Unknown actions are treated as ActionNone.
func (e *Engine) applyAction(action Action) params {
	p := params{
		levels:          len(e.ladder.Levels),
		spacingFraction: e.ladder.SpacingFraction,
		directionBias:   e.directionBias,
		notionalBoost:   1.0,
	}
	if p.levels == 0 {
		p.levels = e.cfg.InitialLevels
	}
	if p.spacingFraction == 0 {
		p.spacingFraction = e.cfg.InitialSpacingFraction
	}

	switch action {
	case ActionIncreaseLevels:
		p.levels = clampInt(int(float64(p.levels)*1.2), e.cfg.MinLevels, e.cfg.MaxLevels)
	case ActionDecreaseLevels:
		p.levels = clampInt(int(float64(p.levels)*0.8), e.cfg.MinLevels, e.cfg.MaxLevels)
	case ActionIncreaseSpacing:
		p.spacingFraction *= 1.25
	case ActionDecreaseSpacing:
		p.spacingFraction *= 0.75
		if p.spacingFraction < e.cfg.MinSpacingFraction {
			p.spacingFraction = e.cfg.MinSpacingFraction
		}
	case ActionBiasBullish:
		p.directionBias = 1
	case ActionBiasBearish:
		p.directionBias = -1
	case ActionResetAndRecenter:
		p.levels = e.cfg.InitialLevels
		p.spacingFraction = e.cfg.InitialSpacingFraction
		p.directionBias = 0
	case ActionAggressiveBullish:
		p.levels = clampInt(int(float64(p.levels)*1.2), e.cfg.MinLevels, e.cfg.MaxLevels)
		p.directionBias = 1
		p.notionalBoost = 1.25
	case ActionAggressiveBearish:
		p.levels = clampInt(int(float64(p.levels)*1.2), e.cfg.MinLevels, e.cfg.MaxLevels)
		p.directionBias = -1
		p.notionalBoost = 1.25
	default:
		// ActionNone or unrecognized: carry current params forward.
	}

	return p
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
