package utils

import (
	"time"
)

// Pacing and rotation defaults
const (
	// HoursPerDemand is the number of relative hours a demand is paced over
	HoursPerDemand = 24

	// FirstHourDefaultPercent is released in hour 1 when the histogram has no entry for it
	FirstHourDefaultPercent = 5.0

	// ProviderStatusBatchSize is the maximum number of order ids per status request
	ProviderStatusBatchSize = 50

	// ActiveOrdersCacheTTL is how long a rotation admission snapshot is trusted
	ActiveOrdersCacheTTL = 5 * time.Minute

	// QueueThreshold marks a tariff queued once it carries this many unfinished orders
	QueueThreshold = 2
)

// Request context keys
type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	IPAddressKey contextKey = "ip_address"
	UserAgentKey contextKey = "user_agent"
	ServiceKey   contextKey = "service_name"
	EndpointKey  contextKey = "endpoint"
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)
