package computer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// runsTotal counts runs by outcome: halted, ceiling or error.
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tinkergo_computer_runs_total",
		Help: "Vertex program runs by outcome",
	}, []string{"program", "outcome"})

	superstepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tinkergo_computer_supersteps_total",
		Help: "Supersteps completed across all runs",
	})

	messagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tinkergo_computer_messages_total",
		Help: "Messages sent by vertex programs",
	})

	superstepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tinkergo_computer_superstep_duration_seconds",
		Help:    "Wall time of one superstep",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	})

	mapReduceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tinkergo_computer_mapreduce_stage_duration_seconds",
		Help:    "Wall time of map/reduce stages",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"stage"})
)
