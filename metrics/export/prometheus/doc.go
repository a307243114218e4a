// Package prometheus renders credauth counters in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] accepts a [credauth.Engine] and exposes an
// [http.Handler]. Counter names are prefixed credauth_*_total.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the
//     Handler.
//   - Mutate engine state.
package prometheus
