package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	grpcprom "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/scrimx/scrims/common/logger"
	"google.golang.org/grpc"
)

type Metrics struct {
	reg           *prometheus.Registry
	serverMetrics *grpcprom.ServerMetrics

	SchedulerFires  *prometheus.CounterVec
	SlotOperations  *prometheus.CounterVec
	ConflictRetries prometheus.Counter
	RemindersSent   *prometheus.CounterVec
	ExpiredReserves prometheus.Counter
	PanicsRecovered prometheus.Counter
	ArmedTimers     prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	srvMetrics := grpcprom.NewServerMetrics(
		grpcprom.WithServerHandlingTimeHistogram(
			grpcprom.WithHistogramBuckets([]float64{0.001, 0.01, 0.1, 0.3, 0.6, 1, 3}),
		),
	)
	reg.MustRegister(srvMetrics)

	f := promauto.With(reg)
	return &Metrics{
		reg:           reg,
		serverMetrics: srvMetrics,
		SchedulerFires: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scrims_scheduler_fires_total",
			Help: "Scheduler trigger executions by job and outcome.",
		}, []string{"job", "outcome"}),
		SlotOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scrims_slot_operations_total",
			Help: "Slot claims, cancellations and reservations by outcome code.",
		}, []string{"op", "code"}),
		ConflictRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "scrims_conflict_retries_total",
			Help: "Optimistic concurrency retries on scrims writes.",
		}),
		RemindersSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scrims_reminders_total",
			Help: "Reminder deliveries by outcome.",
		}, []string{"outcome"}),
		ExpiredReserves: f.NewCounter(prometheus.CounterOpts{
			Name: "scrims_reservations_expired_total",
			Help: "Reservations moved to expired by the sweeper.",
		}),
		PanicsRecovered: f.NewCounter(prometheus.CounterOpts{
			Name: "scrims_panics_recovered_total",
			Help: "Panics recovered in scheduler fires and gRPC handlers.",
		}),
		ArmedTimers: f.NewGauge(prometheus.GaugeOpts{
			Name: "scrims_armed_timers",
			Help: "Per-tenant timers currently armed.",
		}),
	}
}

// Nop returns metrics backed by a private registry that nobody scrapes.
func Nop() *Metrics {
	return New()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

func (m *Metrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return m.serverMetrics.UnaryServerInterceptor()
}

func (m *Metrics) InitializeServer(srv *grpc.Server) {
	m.serverMetrics.InitializeMetrics(srv)
}

// Serve exposes /metrics until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, port int, log *logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("Exposing Prometheus metrics", "port", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
