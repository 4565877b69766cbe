// Package metrics registers the Prometheus counters exported by the docs store.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder 聚合文档存储相关的计数器；nil Recorder 的所有方法都是 no-op。
type Recorder struct {
	cacheLookups *prometheus.CounterVec
	evictions    prometheus.Counter
	saves        *prometheus.CounterVec
	backups      *prometheus.CounterVec
	restores     *prometheus.CounterVec
}

// NewRecorder 创建计数器并注册到 reg。重复注册会返回错误。
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docs_cache_lookups_total",
			Help: "Document cache lookups by result.",
		}, []string{"result"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docs_cache_evictions_total",
			Help: "Document cache entries evicted by the size bound.",
		}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docs_saves_total",
			Help: "Document save attempts by outcome.",
		}, []string{"outcome"}),
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docs_backups_total",
			Help: "Snapshot creations by outcome.",
		}, []string{"outcome"}),
		restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docs_restores_total",
			Help: "Snapshot restores by outcome.",
		}, []string{"outcome"}),
	}

	for _, c := range []prometheus.Collector{r.cacheLookups, r.evictions, r.saves, r.backups, r.restores} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// CacheHit 记录一次缓存命中。
func (r *Recorder) CacheHit() {
	if r != nil {
		r.cacheLookups.WithLabelValues("hit").Inc()
	}
}

// CacheMiss 记录一次缓存未命中。
func (r *Recorder) CacheMiss() {
	if r != nil {
		r.cacheLookups.WithLabelValues("miss").Inc()
	}
}

// CacheEviction 记录一次容量淘汰。
func (r *Recorder) CacheEviction() {
	if r != nil {
		r.evictions.Inc()
	}
}

// Save 记录保存结果。
func (r *Recorder) Save(err error) {
	if r != nil {
		r.saves.WithLabelValues(outcome(err)).Inc()
	}
}

// Backup 记录快照创建结果。
func (r *Recorder) Backup(err error) {
	if r != nil {
		r.backups.WithLabelValues(outcome(err)).Inc()
	}
}

// Restore 记录恢复结果。
func (r *Recorder) Restore(err error) {
	if r != nil {
		r.restores.WithLabelValues(outcome(err)).Inc()
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
