package build

import (
	"sync"
	"time"
)

// BuildStats is a point-in-time copy of the pipeline's build counters.
type BuildStats struct {
	TotalBuilds      int64         `json:"total" yaml:"total"`
	SuccessfulBuilds int64         `json:"successful" yaml:"successful"`
	FailedBuilds     int64         `json:"failed" yaml:"failed"`
	AverageDuration  time.Duration `json:"average_duration" yaml:"average_duration"`
	TotalDuration    time.Duration `json:"total_duration" yaml:"total_duration"`
	LastBuild        time.Time     `json:"last_build" yaml:"last_build"`
	LastReason       string        `json:"last_reason,omitempty" yaml:"last_reason,omitempty"`
	// LastError is the error of the most recent build, empty after a success.
	LastError string `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	// Bundles is the number of URLs the last successful build produced.
	Bundles int `json:"bundles" yaml:"bundles"`
}

// SuccessRate returns the share of successful builds as a percentage.
func (s BuildStats) SuccessRate() float64 {
	if s.TotalBuilds == 0 {
		return 0.0
	}

	return float64(s.SuccessfulBuilds) / float64(s.TotalBuilds) * 100.0
}

// BuildMetrics tracks build outcomes. It is safe for concurrent use.
type BuildMetrics struct {
	stats BuildStats
	mutex sync.RWMutex
}

// NewBuildMetrics creates a new build metrics tracker
func NewBuildMetrics() *BuildMetrics {
	return &BuildMetrics{}
}

// RecordBuild records a build result in the metrics
func (bm *BuildMetrics) RecordBuild(result BuildResult) {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	s := &bm.stats
	s.TotalBuilds++
	s.TotalDuration += result.Duration
	s.AverageDuration = s.TotalDuration / time.Duration(s.TotalBuilds)
	s.LastBuild = time.Now()
	s.LastReason = result.Reason

	if result.Error != nil {
		s.FailedBuilds++
		s.LastError = result.Error.Error()
		return
	}

	s.SuccessfulBuilds++
	s.LastError = ""
	s.Bundles = len(result.CSS) + len(result.JS)
}

// Snapshot returns a copy of the current counters.
func (bm *BuildMetrics) Snapshot() BuildStats {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()

	return bm.stats
}
