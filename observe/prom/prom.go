// Package prom exposes scheduler and task lifecycle events as Prometheus
// metrics. All collectors live on the default registry under the "future"
// namespace and carry a scheduler label, so several schedulers can share
// the process.
package prom

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NetPo4ki/go-future/future"
)

var (
	tasksStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "future",
			Subsystem: "tasks",
			Name:      "started_total",
			Help:      "Task bodies that began executing.",
		},
		[]string{"scheduler"},
	)
	tasksSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "future",
			Subsystem: "tasks",
			Name:      "settled_total",
			Help:      "Terminal transitions by final state.",
		},
		[]string{"scheduler", "state"},
	)
	taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "future",
			Subsystem: "tasks",
			Name:      "duration_seconds",
			Help:      "Body execution time from start to settle.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"scheduler", "state"},
	)
	taskFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "future",
			Subsystem: "tasks",
			Name:      "failures_total",
			Help:      "Individual failures carried by faulted tasks.",
		},
		[]string{"scheduler"},
	)
	taskYields = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "future",
			Subsystem: "tasks",
			Name:      "yields_total",
			Help:      "Voluntary reposts to the back of the ready queue.",
		},
		[]string{"scheduler"},
	)
	resumeWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "future",
			Subsystem: "tasks",
			Name:      "resume_wait_seconds",
			Help:      "Time a suspended body waited for a worker grant.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"scheduler"},
	)
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "future",
			Subsystem: "sched",
			Name:      "queue_depth",
			Help:      "Ready-queue length after the most recent enqueue.",
		},
		[]string{"scheduler"},
	)
	unobservedFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "future",
			Subsystem: "sched",
			Name:      "unobserved_failures_total",
			Help:      "Failures nobody read before scheduler close.",
		},
		[]string{"scheduler"},
	)
)

// Register installs the collectors on reg. Call once per registry before
// scraping; New registers on the default registry on its own.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		tasksStarted,
		tasksSettled,
		taskDuration,
		taskFailures,
		taskYields,
		resumeWait,
		queueDepth,
		unobservedFailures,
	)
}

var registerOnce sync.Once

// Observer translates future.Observer callbacks into metric updates for one
// scheduler. Safe for concurrent use; all state lives in the collectors.
type Observer struct {
	scheduler string
}

// New returns an observer labeled with the scheduler name, registering the
// shared collectors on the default registry on first use.
func New(scheduler string) *Observer {
	registerOnce.Do(func() { Register(prometheus.DefaultRegisterer) })
	return &Observer{scheduler: scheduler}
}

func (o *Observer) TaskStarted(future.TaskID, future.WorkerID) {
	tasksStarted.WithLabelValues(o.scheduler).Inc()
}

func (o *Observer) TaskSettled(_ future.TaskID, state future.State, dur time.Duration, failures int) {
	tasksSettled.WithLabelValues(o.scheduler, state.String()).Inc()
	taskDuration.WithLabelValues(o.scheduler, state.String()).Observe(dur.Seconds())
	if failures > 0 {
		taskFailures.WithLabelValues(o.scheduler).Add(float64(failures))
	}
}

func (o *Observer) TaskYielded(future.TaskID, future.WorkerID) {
	taskYields.WithLabelValues(o.scheduler).Inc()
}

func (o *Observer) TaskResumed(_ future.TaskID, _ future.WorkerID, waited time.Duration) {
	resumeWait.WithLabelValues(o.scheduler).Observe(waited.Seconds())
}

func (o *Observer) QueueDepth(depth int) {
	queueDepth.WithLabelValues(o.scheduler).Set(float64(depth))
}

func (o *Observer) UnobservedFailure(_ future.TaskID, errs []error) {
	unobservedFailures.WithLabelValues(o.scheduler).Add(float64(len(errs)))
}
