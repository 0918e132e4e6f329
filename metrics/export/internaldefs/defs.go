package internaldefs

import (
	"github.com/MrEthical07/authcore"
)

// CounterDef names one Engine counter for exporters.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one Engine latency histogram for exporters.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authcore.MetricRegisterSuccess, Name: "authcore_register_success_total", Help: "Identities created."},
	{ID: authcore.MetricRegisterDuplicate, Name: "authcore_register_duplicate_total", Help: "Registrations rejected because the email exists."},
	{ID: authcore.MetricRegisterInvalid, Name: "authcore_register_invalid_total", Help: "Registrations rejected for malformed input."},
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful login attempts."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Login attempts with bad credentials."},
	{ID: authcore.MetricLoginLockedOut, Name: "authcore_login_locked_out_total", Help: "Login attempts rejected by client lockout."},
	{ID: authcore.MetricRateLimitHit, Name: "authcore_rate_limit_hit_total", Help: "Requests rejected by a route ceiling."},
	{ID: authcore.MetricTokenIssued, Name: "authcore_token_issued_total", Help: "Access tokens issued."},
	{ID: authcore.MetricTokenInvalid, Name: "authcore_token_invalid_total", Help: "Tokens rejected for signature or payload errors."},
	{ID: authcore.MetricTokenExpired, Name: "authcore_token_expired_total", Help: "Tokens rejected after expiry."},
	{ID: authcore.MetricIdentityMissing, Name: "authcore_identity_missing_total", Help: "Valid tokens whose identity no longer exists."},
	{ID: authcore.MetricStoreUnavailable, Name: "authcore_store_unavailable_total", Help: "Identity store backend failures."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricIdentityLatency, Name: "authcore_current_identity_latency_seconds", Help: "CurrentIdentity latency histogram."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "authcore_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// Engine bucket is the implicit +Inf bucket.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
