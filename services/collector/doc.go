// Package collector assembles up to 300 unique reviews from a dynamic,
// JavaScript-rendered review feed across three sort orders (recent, worst,
// best). It survives partial page-resource failures and DOM layout drift
// through a progressive, multi-tier element-selection strategy, and always
// returns whatever was collected rather than failing a run.
package collector

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("services/collector")
