// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hotstuff

import (
	"github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus"
)

type hotstuffMetrics struct {
	proposalsReceived prometheus.Counter
	proposalsRejected prometheus.Counter
	votesSent         prometheus.Counter
	votesReceived     prometheus.Counter
	qcsFormed         prometheus.Counter
	dummyBlocks       prometheus.Counter
	viewTimeouts      prometheus.Counter
	syncRequests      prometheus.Counter

	leafHeight      prometheus.Gauge
	committedHeight prometheus.Gauge

	proposalDuration metric.Averager
}

func newMetrics(registerer prometheus.Registerer) (*hotstuffMetrics, error) {
	m := &hotstuffMetrics{
		proposalsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotstuff_proposals_received",
			Help: "Number of proposals received",
		}),
		proposalsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotstuff_proposals_rejected",
			Help: "Number of proposals dropped as invalid",
		}),
		votesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotstuff_votes_sent",
			Help: "Number of votes emitted",
		}),
		votesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotstuff_votes_received",
			Help: "Number of votes received",
		}),
		qcsFormed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotstuff_qcs_formed",
			Help: "Number of quorum certificates formed",
		}),
		dummyBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotstuff_dummy_blocks",
			Help: "Number of dummy blocks synthesized for leader-failed heights",
		}),
		viewTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotstuff_view_timeouts",
			Help: "Number of view timer expiries",
		}),
		syncRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotstuff_sync_requests",
			Help: "Number of catch-up sync requests served",
		}),
		leafHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hotstuff_leaf_height",
			Help: "Height of the current leaf block",
		}),
		committedHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hotstuff_committed_height",
			Help: "Height of the committed frontier",
		}),
	}

	duration, err := metric.NewAverager(
		"hotstuff_proposal_duration",
		"time (in ns) spent processing one proposal",
		registerer,
	)
	if err != nil {
		return nil, err
	}
	m.proposalDuration = duration

	for _, collector := range []prometheus.Collector{
		m.proposalsReceived,
		m.proposalsRejected,
		m.votesSent,
		m.votesReceived,
		m.qcsFormed,
		m.dummyBlocks,
		m.viewTimeouts,
		m.syncRequests,
		m.leafHeight,
		m.committedHeight,
	} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}
