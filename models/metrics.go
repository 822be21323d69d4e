package models

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	placeKindLabel = "kind"
)

var (
	kaunPlaceOccupancy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kaun_place_occupancy",
		Help: "The number of agents assigned to places, by place kind.",
	}, []string{placeKindLabel})

	kaunPlaceAssignmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaun_place_assignments_total",
		Help: "The total number of place assignments.",
	}, []string{placeKindLabel})
)

func instrumentIncreaseOccupancyGauge(kind PlaceKind) {
	kaunPlaceOccupancy.
		With(prometheus.Labels{placeKindLabel: string(kind)}).
		Inc()
}

func instrumentDecreaseOccupancyGauge(kind PlaceKind) {
	kaunPlaceOccupancy.
		With(prometheus.Labels{placeKindLabel: string(kind)}).
		Dec()
}

func instrumentCountAssignment(kind PlaceKind) {
	kaunPlaceAssignmentsTotal.
		With(prometheus.Labels{placeKindLabel: string(kind)}).
		Inc()
}
