package nats

import (
	"time"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
)

// Lane subjects. Each lane is an independent queue partition with its
// own rate ceiling and consumer.
const (
	LaneHigh    = "tasks.high"
	LaneDefault = "tasks.default"
	LaneScrape  = "tasks.scrape"
	LaneExtract = "tasks.extract"
	LaneReport  = "tasks.report"
)

// Route is the static scheduling entry for one task type: lane,
// requests-per-minute ceiling, soft and hard execution limits, and the
// retry budget. The table is consulted at enqueue and dispatch time;
// task behavior is never patched at runtime.
type Route struct {
	Lane          string
	RatePerMinute int
	SoftLimit     time.Duration
	HardLimit     time.Duration
	MaxRetries    int
}

var routes = map[domain.TaskType]Route{
	domain.TaskOrchestrateSearch:  {Lane: LaneDefault, RatePerMinute: 60, SoftLimit: 5 * time.Minute, HardLimit: 10 * time.Minute, MaxRetries: 3},
	domain.TaskScrapeRecords:      {Lane: LaneScrape, RatePerMinute: 10, SoftLimit: 5 * time.Minute, HardLimit: 10 * time.Minute, MaxRetries: 3},
	domain.TaskFetchDocument:      {Lane: LaneScrape, RatePerMinute: 20, SoftLimit: time.Minute, HardLimit: 2 * time.Minute, MaxRetries: 2},
	domain.TaskAnalyzeDocuments:   {Lane: LaneExtract, RatePerMinute: 30, SoftLimit: 2 * time.Minute, HardLimit: 5 * time.Minute, MaxRetries: 2},
	domain.TaskGenerateReport:     {Lane: LaneReport, RatePerMinute: 30, SoftLimit: 3 * time.Minute, HardLimit: 6 * time.Minute, MaxRetries: 2},
	domain.TaskProcessBatch:       {Lane: LaneDefault, RatePerMinute: 30, SoftLimit: 10 * time.Minute, HardLimit: 15 * time.Minute, MaxRetries: 1},
	domain.TaskProbeJurisdictions: {Lane: LaneDefault, RatePerMinute: 60, SoftLimit: 5 * time.Minute, HardLimit: 10 * time.Minute, MaxRetries: 1},
	domain.TaskExpireStale:        {Lane: LaneDefault, RatePerMinute: 60, SoftLimit: 5 * time.Minute, HardLimit: 10 * time.Minute, MaxRetries: 1},
}

// RouteFor returns the scheduling entry for a task type.
func RouteFor(t domain.TaskType) (Route, bool) {
	r, ok := routes[t]
	return r, ok
}

// SubjectFor picks the delivery subject for a task. High and urgent
// priority searches promote orchestration tasks to the high lane; all
// other routing is static.
func SubjectFor(task domain.Task) string {
	r, ok := routes[task.Type]
	if !ok {
		return LaneDefault
	}
	if task.Type == domain.TaskOrchestrateSearch &&
		(task.Priority == domain.PriorityHigh || task.Priority == domain.PriorityUrgent) {
		return LaneHigh
	}
	return r.Lane
}

// Lanes lists every subject a worker must subscribe to.
func Lanes() []string {
	return []string{LaneHigh, LaneDefault, LaneScrape, LaneExtract, LaneReport}
}

// laneRate is the dispatch ceiling for a lane: the most restrictive
// rate among task types routed to it, so no task type can drag a lane
// past its own budget.
func laneRate(lane string) int {
	min := 0
	for _, r := range routes {
		if r.Lane != lane {
			continue
		}
		if min == 0 || r.RatePerMinute < min {
			min = r.RatePerMinute
		}
	}
	if lane == LaneHigh {
		// Promoted orchestration tasks share the default orchestration budget.
		return routes[domain.TaskOrchestrateSearch].RatePerMinute
	}
	if min == 0 {
		min = 60
	}
	return min
}

// laneAckWait is the hard execution limit applied to a lane's consumer:
// the longest hard limit among its task types, after which an
// unacknowledged delivery returns to the lane.
func laneAckWait(lane string) time.Duration {
	max := time.Duration(0)
	for t, r := range routes {
		subject := r.Lane
		if lane == LaneHigh && t == domain.TaskOrchestrateSearch {
			subject = LaneHigh
		}
		if subject != lane {
			continue
		}
		if r.HardLimit > max {
			max = r.HardLimit
		}
	}
	if max == 0 {
		max = 10 * time.Minute
	}
	return max
}
