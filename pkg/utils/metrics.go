package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "call_sessions_active",
		Help: "Call sessions currently held by the orchestrator (not yet archived)",
	})

	ConnectedSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "call_sessions_connected",
		Help: "Call sessions with a running billing timer",
	})

	SessionTerminations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_session_terminations_total",
		Help: "Terminal transitions by status and reason",
	}, []string{"status", "reason"})

	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_settlements_total",
		Help: "Completed financial settlements by kind (debit, refund, release)",
	}, []string{"kind"})

	LedgerRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_ledger_retries_total",
		Help: "Ledger calls retried after a transient failure",
	}, []string{"operation"})

	Extensions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_extensions_total",
		Help: "Extension attempts by outcome",
	}, []string{"outcome"})

	SignalingDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_messages_dropped_total",
		Help: "Signaling messages dropped by the orchestrator",
	}, []string{"type", "cause"})
)
