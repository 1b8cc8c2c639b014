// Package analyze implements the longitudinal read-only analyses over
// accumulated feature and anomaly history: Pareto/waste, creative
// lifecycle, spend response curve, tracking health, the lag dependency
// learner, and creative risk scoring.
//
// Analyzers never write back into the pipeline tables they read; their
// outputs are fully recomputed and replaced on each run.
package analyze
