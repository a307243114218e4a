// Package otel bridges credauth counters to OpenTelemetry.
//
// [NewOTelExporter] registers one Int64ObservableCounter per credauth
// metric on the provided meter; values are read from the engine in the
// collection callback. Call [OTelExporter.Close] to unregister.
//
// # What this package must NOT do
//
//   - Own a MeterProvider; callers supply the meter.
//   - Mutate engine state.
package otel
