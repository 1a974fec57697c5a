package stocklock

import (
	"fmt"
	"time"

	"jastip-market/internal/domain/reservation"

	"github.com/google/uuid"
)

type Stats struct {
	ActiveLocks       int               `json:"activeLocks"`
	ExpiredUnswept    int               `json:"expiredUnswept"`
	TotalUnits        int               `json:"totalUnits"`
	UnitsByProduct    map[uuid.UUID]int `json:"unitsByProduct"`
	OldestHoldAge     time.Duration     `json:"oldestHoldAgeNs"`
	ApproxMemoryBytes int               `json:"approxMemoryBytes"`
}

type HealthLevel string

const (
	HealthHealthy  HealthLevel = "healthy"
	HealthWarning  HealthLevel = "warning"
	HealthCritical HealthLevel = "critical"
)

type Health struct {
	Level           HealthLevel   `json:"level"`
	LockCount       int           `json:"lockCount"`
	OldestHoldAge   time.Duration `json:"oldestHoldAgeNs"`
	Issues          []string      `json:"issues"`
	Recommendations []string      `json:"recommendations"`
}

// rough per-entry footprint: map slot, entity, one line
const (
	entryOverheadBytes = 160
	lineBytes          = 24
)

func (m *Manager) Stats() Stats {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	st := Stats{
		ActiveLocks:    len(m.locks),
		UnitsByProduct: make(map[uuid.UUID]int),
	}
	for _, r := range m.locks {
		if r.IsExpiredAt(now) {
			st.ExpiredUnswept++
		}
		lines := r.Lines()
		for _, l := range lines {
			st.UnitsByProduct[l.ProductID] += l.Quantity
		}
		st.TotalUnits += reservation.TotalQuantity(lines)
		st.ApproxMemoryBytes += entryOverheadBytes + len(lines)*lineBytes
		if age := r.AgeAt(now); age > st.OldestHoldAge {
			st.OldestHoldAge = age
		}
	}
	return st
}

// Health grades the table by size and hold age. A growing table or very old
// holds usually mean a release path is not firing.
func (m *Manager) Health() Health {
	st := m.Stats()
	h := Health{
		Level:           HealthHealthy,
		LockCount:       st.ActiveLocks,
		OldestHoldAge:   st.OldestHoldAge,
		Issues:          []string{},
		Recommendations: []string{},
	}

	raise := func(level HealthLevel) {
		if level == HealthCritical || h.Level == HealthHealthy {
			h.Level = level
		}
	}

	switch {
	case st.ActiveLocks >= m.cfg.CriticalLockCount:
		raise(HealthCritical)
		h.Issues = append(h.Issues, fmt.Sprintf("%d active holds exceeds critical threshold %d", st.ActiveLocks, m.cfg.CriticalLockCount))
		h.Recommendations = append(h.Recommendations, "check that payment callbacks and expiry jobs are being processed")
	case st.ActiveLocks >= m.cfg.WarnLockCount:
		raise(HealthWarning)
		h.Issues = append(h.Issues, fmt.Sprintf("%d active holds exceeds warning threshold %d", st.ActiveLocks, m.cfg.WarnLockCount))
		h.Recommendations = append(h.Recommendations, "watch queue depth; run the reservations sweep if it keeps growing")
	}

	switch {
	case st.OldestHoldAge >= m.cfg.CriticalHoldAge:
		raise(HealthCritical)
		h.Issues = append(h.Issues, fmt.Sprintf("oldest hold is %s old", st.OldestHoldAge.Round(time.Minute)))
		h.Recommendations = append(h.Recommendations, "run the reconcile sweep to drop holds of settled orders")
	case st.OldestHoldAge >= m.cfg.WarnHoldAge:
		raise(HealthWarning)
		h.Issues = append(h.Issues, fmt.Sprintf("oldest hold is %s old", st.OldestHoldAge.Round(time.Minute)))
		h.Recommendations = append(h.Recommendations, "verify auto-reject jobs are running for stale validations")
	}

	if st.ExpiredUnswept > 0 {
		raise(HealthWarning)
		h.Issues = append(h.Issues, fmt.Sprintf("%d holds are past expiry but not swept", st.ExpiredUnswept))
		h.Recommendations = append(h.Recommendations, "trigger POST /ops/locks/cleanup or check the scheduler")
	}

	return h
}
