// Package domain holds the shared data model for the ad performance
// pipeline: raw weekly insights, classified weekly results, computed
// feature rows, anomaly records, and the longitudinal analyzer outputs.
//
// Types here carry no behavior beyond small derivation helpers and must
// stay free of I/O so that every pipeline stage is a pure function of
// its inputs.
package domain
