package scheduler

import (
	"github.com/junctionctl/controller/internal/config"
	"github.com/junctionctl/controller/internal/phase"
	"github.com/junctionctl/controller/internal/report"
)

// buildCycleReport assembles the HTTP cycle-report payload from spec.md
// §4.5 out of the normalized accumulator and the newly recomputed
// durations.
func buildCycleReport(cfg *config.Resolved, normalized Accumulator, next phase.Durations, cycleNum int64) report.CycleReport {
	durationsSeconds := make([]int64, len(next))
	for i, ms := range next {
		durationsSeconds[i] = ms / 1000
	}

	cycleData := make([]report.PhaseCycleData, len(normalized))
	for p, row := range normalized {
		lanes := make([]report.LaneCycleData, len(row))
		for lane, m := range row {
			count := 0
			for _, n := range m.Vehicles {
				count += n
			}
			lanes[lane] = report.LaneCycleData{
				LaneIndex:    lane,
				Density:      m.Density,
				Count:        count,
				VehicleTypes: m.Vehicles,
			}
		}
		cycleData[p] = report.PhaseCycleData{PhaseIndex: p, Lanes: lanes}
	}

	return report.CycleReport{
		CycleReportID:           report.NewCycleReportID(),
		SubLocationID:           cfg.Config.JunctionID,
		Name:                    cfg.Config.JunctionName,
		Description:             "adaptive phase scheduler cycle report",
		NextCyclePhaseDurations: durationsSeconds,
		CycleData:               cycleData,
		TSecretKey:              cfg.Config.TSecretKey,
	}
}
