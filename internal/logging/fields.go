package logging

import "log/slog"

// Common field names for consistent logging across components.
const (
	FieldComponent     = "component"
	FieldTenantID      = "tenant_id"
	FieldWarehouseID   = "warehouse_id"
	FieldEventID       = "event_id"
	FieldEventType     = "event_type"
	FieldCorrelationID = "correlation_id"
	FieldCausationID   = "causation_id"
	FieldAgent         = "agent"
	FieldRoutingKey    = "routing_key"
	FieldOutboxID      = "outbox_id"
	FieldRetryCount    = "retry_count"
	FieldDuration      = "duration_ms"
	FieldError         = "error"
	FieldJob           = "job"
)

// Component returns a slog attribute for the component name.
func Component(name string) slog.Attr {
	return slog.String(FieldComponent, name)
}

// TenantID returns a slog attribute for the tenant ID.
func TenantID(id string) slog.Attr {
	return slog.String(FieldTenantID, id)
}

// WarehouseID returns a slog attribute for the warehouse ID.
func WarehouseID(id string) slog.Attr {
	return slog.String(FieldWarehouseID, id)
}

// EventID returns a slog attribute for an envelope's event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// EventType returns a slog attribute for an envelope's event type.
func EventType(t string) slog.Attr {
	return slog.String(FieldEventType, t)
}

// CorrelationID returns a slog attribute for the correlation ID.
func CorrelationID(id string) slog.Attr {
	return slog.String(FieldCorrelationID, id)
}

// CausationID returns a slog attribute for the causation ID.
func CausationID(id string) slog.Attr {
	return slog.String(FieldCausationID, id)
}

// Agent returns a slog attribute for an agent name.
func Agent(name string) slog.Attr {
	return slog.String(FieldAgent, name)
}

// RoutingKey returns a slog attribute for a broker routing key.
func RoutingKey(key string) slog.Attr {
	return slog.String(FieldRoutingKey, key)
}

// OutboxID returns a slog attribute for an outbox entry ID.
func OutboxID(id string) slog.Attr {
	return slog.String(FieldOutboxID, id)
}

// RetryCount returns a slog attribute for a retry counter.
func RetryCount(n int) slog.Attr {
	return slog.Int(FieldRetryCount, n)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// Job returns a slog attribute for a scheduled job name.
func Job(name string) slog.Attr {
	return slog.String(FieldJob, name)
}
