package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the auction collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	bidsAccepted     *prometheus.CounterVec
	bidsRejected     *prometheus.CounterVec
	eventsPublished  *prometheus.CounterVec
	eventsDropped    prometheus.Counter
	deliveryFailures prometheus.Counter
	subscribers      prometheus.Gauge
	listingQueues    prometheus.Gauge
}

// New creates the collectors and registers them with registerer.
// A nil registerer uses prometheus.DefaultRegisterer.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		bidsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plate_bidding",
			Name:      "bids_accepted_total",
			Help:      "Accepted bid mutations by action.",
		}, []string{"action"}),
		bidsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plate_bidding",
			Name:      "bids_rejected_total",
			Help:      "Rejected bid requests by reason.",
		}, []string{"reason"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plate_bidding",
			Name:      "events_published_total",
			Help:      "Events accepted into a listing queue by action.",
		}, []string{"action"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "plate_bidding",
			Name:      "events_dropped_total",
			Help:      "Events dropped because the listing queue was full.",
		}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "plate_bidding",
			Name:      "event_delivery_failures_total",
			Help:      "Failed deliveries that caused a subscriber to be removed.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "plate_bidding",
			Name:      "subscribers",
			Help:      "Live subscriptions across all listings.",
		}),
		listingQueues: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "plate_bidding",
			Name:      "listing_queues",
			Help:      "Per-listing event queues currently alive.",
		}),
	}

	var err error
	if m.bidsAccepted, err = register(registerer, m.bidsAccepted); err != nil {
		return nil, err
	}
	if m.bidsRejected, err = register(registerer, m.bidsRejected); err != nil {
		return nil, err
	}
	if m.eventsPublished, err = register(registerer, m.eventsPublished); err != nil {
		return nil, err
	}
	if m.eventsDropped, err = register(registerer, m.eventsDropped); err != nil {
		return nil, err
	}
	if m.deliveryFailures, err = register(registerer, m.deliveryFailures); err != nil {
		return nil, err
	}
	if m.subscribers, err = register(registerer, m.subscribers); err != nil {
		return nil, err
	}
	if m.listingQueues, err = register(registerer, m.listingQueues); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to r, reusing an identical collector that is already registered
func register[T prometheus.Collector](r prometheus.Registerer, c T) (T, error) {
	if err := r.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) BidAccepted(action string) {
	if m == nil {
		return
	}
	m.bidsAccepted.WithLabelValues(action).Inc()
}

func (m *Metrics) BidRejected(reason string) {
	if m == nil {
		return
	}
	m.bidsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) EventPublished(action string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(action).Inc()
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

func (m *Metrics) DeliveryFailed() {
	if m == nil {
		return
	}
	m.deliveryFailures.Inc()
}

// SubscribersChanged adjusts the live subscription gauge by delta
func (m *Metrics) SubscribersChanged(delta int) {
	if m == nil {
		return
	}
	m.subscribers.Add(float64(delta))
}

// QueuesChanged adjusts the live listing queue gauge by delta
func (m *Metrics) QueuesChanged(delta int) {
	if m == nil {
		return
	}
	m.listingQueues.Add(float64(delta))
}
