// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exports gatelog counters to Prometheus. A nil *Recorder
// is valid and records nothing, so components take it unconditionally.
package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "gatelog"

// Recorder implements the session, backup, autofill and auth recorder
// interfaces.
type Recorder struct {
	once sync.Once
	reg  *prom.Registry

	sessionTransitions *prom.CounterVec
	forcedLogouts      prom.Counter
	backupResults      *prom.CounterVec
	backupDuration     *prom.HistogramVec
	backupsDeleted     prom.Counter
	searchQueries      *prom.CounterVec
	logins             *prom.CounterVec
}

// NewRecorder constructs and registers the metrics on reg, or on a fresh
// registry when reg is nil.
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{reg: reg}
	r.once.Do(func() {
		r.sessionTransitions = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Operator session state transitions by target state",
		}, []string{"state"})
		r.forcedLogouts = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "session_forced_logouts_total",
			Help:      "Sessions ended by the inactivity countdown",
		})
		r.backupResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "backup_results_total",
			Help:      "Backup attempts by trigger and result",
		}, []string{"trigger", "result"})
		r.backupDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_duration_seconds",
			Help:      "Duration of backup attempts",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"trigger"})
		r.backupsDeleted = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "backups_deleted_total",
			Help:      "Backups removed by retention cleanup",
		})
		r.searchQueries = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "search_queries_total",
			Help:      "Autocomplete queries by outcome",
		}, []string{"outcome"})
		r.logins = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Operator sign-in attempts by result",
		}, []string{"result"})
		reg.MustRegister(r.sessionTransitions, r.forcedLogouts, r.backupResults, r.backupDuration,
			r.backupsDeleted, r.searchQueries, r.logins)
		reg.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	})
	return r
}

// Registry returns the registry the metrics are registered on.
func (r *Recorder) Registry() *prom.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// RegisterGauge exposes a scrape-time value such as queue depth.
func (r *Recorder) RegisterGauge(name, help string, fn func() float64) error {
	if r == nil {
		return nil
	}
	return r.reg.Register(prom.NewGaugeFunc(prom.GaugeOpts{Namespace: namespace, Name: name, Help: help}, fn))
}

func (r *Recorder) IncSessionTransition(state string) {
	if r == nil || r.sessionTransitions == nil {
		return
	}
	r.sessionTransitions.WithLabelValues(state).Inc()
}

func (r *Recorder) IncForcedLogout() {
	if r == nil || r.forcedLogouts == nil {
		return
	}
	r.forcedLogouts.Inc()
}

func (r *Recorder) ObserveBackup(trigger, result string, d time.Duration) {
	if r == nil || r.backupResults == nil {
		return
	}
	r.backupResults.WithLabelValues(trigger, result).Inc()
	r.backupDuration.WithLabelValues(trigger).Observe(d.Seconds())
}

func (r *Recorder) AddBackupsDeleted(n int) {
	if r == nil || r.backupsDeleted == nil || n <= 0 {
		return
	}
	r.backupsDeleted.Add(float64(n))
}

func (r *Recorder) IncSearchQuery(outcome string) {
	if r == nil || r.searchQueries == nil {
		return
	}
	r.searchQueries.WithLabelValues(outcome).Inc()
}

func (r *Recorder) IncLogin(result string) {
	if r == nil || r.logins == nil {
		return
	}
	r.logins.WithLabelValues(result).Inc()
}
