package insight

import "errors"

// Sentinel errors for the insight service layer.
var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidStatus = errors.New("invalid anomaly status")
	ErrInvalidJob    = errors.New("invalid job type")
	ErrJobActive     = errors.New("job already pending or running for account")
	ErrEmptyBatch    = errors.New("empty insight batch")
)
