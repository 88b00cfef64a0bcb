package regime

import "okx-strategy-fleet/pkg/types"

// DNA 由策略参数推导行为标签，纯函数
func DNA(p types.StrategyParams) types.StrategyDNA {
	p = p.WithDefaults()
	dna := types.NewDNA()

	trend := p.SignalMode == types.ModeTrend
	if trend && (p.EMASlow >= 50 || p.UseDonchianBreakout) {
		dna[types.TagTrendFollower] = struct{}{}
	}
	if trend && p.UseRSIFilter && p.EMAFast <= 12 {
		dna[types.TagMomentum] = struct{}{}
	}
	if p.SignalMode == types.ModeReversion {
		dna[types.TagMeanReversion] = struct{}{}
	}
	if p.TakeProfitPct > 0 && p.TakeProfitPct <= 1.5 {
		dna[types.TagScalper] = struct{}{}
	}
	if p.ATRMultiplier >= 2.5 {
		dna[types.TagVolatility] = struct{}{}
	}
	if p.EMAFast <= 7 {
		dna[types.TagFastSignal] = struct{}{}
	}
	if p.UseVolumeConfirmation {
		dna[types.TagConfirmation] = struct{}{}
	}

	if len(dna) == 0 {
		dna[types.TagGeneral] = struct{}{}
	}
	return dna
}
