// Package internaldefs maps engine counters onto per-flow metric families so
// the Prometheus and OTel exporters name and label series the same way.
package internaldefs
