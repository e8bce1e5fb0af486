// Package otel publishes authpipe metrics through an OpenTelemetry Meter.
//
// [NewExporter] registers one Int64ObservableCounter per pipeline counter and
// one Int64ObservableGauge per histogram bucket, plus a _count gauge. A single
// callback reads the pipeline snapshot on each collection cycle.
//
// Callers own the MeterProvider.
package otel
