// Package insight implements the pipeline data surface.
//
// The service layer owns validation and business rules for insight
// ingestion, mapping refreshes, feature and anomaly reads, anomaly
// review transitions, analyzer output reads, and sync-job control. It
// depends on the Repository interface defined in this package and
// should never import from api/.
//
// Repository implementations live in repository/postgres/.
package insight
