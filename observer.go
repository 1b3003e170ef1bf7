package nscache

import (
	"context"
	"time"

	"github.com/goforj/nscache/cachecore"
)

// Observer receives events for manager operations.
// It is called after each operation completes.
type Observer interface {
	OnOp(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver cachecore.Driver)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver cachecore.Driver)

// OnOp implements Observer.
func (f ObserverFunc) OnOp(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver cachecore.Driver) {
	if f == nil {
		return
	}
	f(ctx, op, key, hit, err, dur, driver)
}

// MetricsObserver reports every operation to a MetricsSink as an
// "nscache.op" counter and an "nscache.op_latency" distribution in seconds.
// Submission errors go to the logger at debug level.
type MetricsObserver struct {
	Sink   cachecore.MetricsSink
	Logger cachecore.Logger
}

// OnOp implements Observer.
func (m MetricsObserver) OnOp(_ context.Context, op string, _ string, hit bool, err error, dur time.Duration, driver cachecore.Driver) {
	if m.Sink == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	hitTag := "miss"
	if hit {
		hitTag = "hit"
	}
	tags := []string{"op:" + op, "driver:" + string(driver), "status:" + status, "result:" + hitTag}
	m.report(m.Sink.Increment("nscache.op", tags...))
	m.report(m.Sink.Distribution("nscache.op_latency", dur.Seconds(), "op:"+op, "driver:"+string(driver)))
}

func (m MetricsObserver) report(err error) {
	if err != nil && m.Logger != nil {
		m.Logger.Debug("metrics submission failed", cachecore.Fields{"error": err})
	}
}

// multiObserver fans an event out to several observers in order.
type multiObserver []Observer

func (m multiObserver) OnOp(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver cachecore.Driver) {
	for _, o := range m {
		o.OnOp(ctx, op, key, hit, err, dur, driver)
	}
}
