package domain

// SelectConfig picks the default panel configuration for a yearly consumption
// target. Candidates are scanned in ascending order and the first one whose
// adjusted AC yield meets the target wins:
//
//	adjustedYield = yearlyEnergyDcKwh * capacityRatio * dcToAcDerate
//
// When no candidate reaches the target the last (largest) index is returned:
// the installation is undersized but it is the best available, not an error.
// A target of zero or less is satisfied by any candidate, so index 0 is
// returned. An empty candidate list is malformed upstream metadata and fails
// with ErrNoConfigurations.
//
// SelectConfig is a pure function; callers re-run it whenever the target,
// capacity ratio, or derate changes, unless the user has pinned a
// configuration manually (see session.Store).
func SelectConfig(configs []SolarPanelConfig, targetYearlyKwh, capacityRatio, dcToAcDerate float64) (int, error) {
	if len(configs) == 0 {
		return 0, ErrNoConfigurations
	}
	if targetYearlyKwh <= 0 {
		return 0, nil
	}
	for i, c := range configs {
		adjusted := c.YearlyEnergyDcKwh * capacityRatio * dcToAcDerate
		if adjusted >= targetYearlyKwh {
			return i, nil
		}
	}
	return len(configs) - 1, nil
}
