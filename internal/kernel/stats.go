package kernel

import "time"

// Stats is a point-in-time snapshot of kernel counters.
type Stats struct {
	SignalsGenerated  uint64 `json:"signals_generated"`
	SignalsDelivered  uint64 `json:"signals_delivered"`
	SignalsBlocked    uint64 `json:"signals_blocked"`
	SignalsCoalesced  uint64 `json:"signals_coalesced"`
	SignalsDiscarded  uint64 `json:"signals_discarded"`
	QueueOverflows    uint64 `json:"queue_overflows"`
	DeliveryFailures  uint64 `json:"delivery_failures"`
	Exits             uint64 `json:"exits"`
	Kills             uint64 `json:"kills"`
	ForceKills        uint64 `json:"force_kills"`
	Reaps             uint64 `json:"reaps"`
	OrphansReparented uint64 `json:"orphans_reparented"`
	WaitCalls         uint64 `json:"wait_calls"`

	AvgDeliveryTime time.Duration `json:"avg_delivery_ns"`
	MaxDeliveryTime time.Duration `json:"max_delivery_ns"`

	Processes map[string]int `json:"processes"`
	Zombies   int            `json:"zombies"`
	Uptime    time.Duration  `json:"uptime_ns"`
}

// Stats returns a snapshot of the kernel counters and per-state
// process counts.
func (k *Kernel) Stats() Stats {
	k.mu.Lock()
	defer k.mu.Unlock()

	s := Stats{
		SignalsGenerated:  k.stats.generated,
		SignalsDelivered:  k.stats.delivered,
		SignalsBlocked:    k.stats.blocked,
		SignalsCoalesced:  k.stats.coalesced,
		SignalsDiscarded:  k.stats.discarded,
		QueueOverflows:    k.stats.overflows,
		DeliveryFailures:  k.stats.deliveryFailures,
		Exits:             k.stats.exits,
		Kills:             k.stats.kills,
		ForceKills:        k.stats.forced,
		Reaps:             k.stats.reaps,
		OrphansReparented: k.stats.reparents,
		WaitCalls:         k.stats.waits,
		MaxDeliveryTime:   k.stats.deliveryMax,
		Processes:         map[string]int{},
		Uptime:            k.clock.Now().Sub(k.startedAt),
	}
	if k.stats.delivered > 0 {
		s.AvgDeliveryTime = k.stats.deliveryTotal / time.Duration(k.stats.delivered)
	}
	k.table.each(func(p *Process) {
		s.Processes[p.state.String()]++
		if p.state == Zombie {
			s.Zombies++
		}
	})
	if k.metrics != nil {
		k.metrics.SetKernelUptime(s.Uptime.Seconds())
	}
	return s
}
