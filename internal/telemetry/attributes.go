// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by driver spans.
const (
	SessionIDKey     = "vrlink.session_id"
	SessionClientKey = "vrlink.client"
	SessionReasonKey = "vrlink.session.end_reason"

	LifecycleTriggerKey = "vrlink.lifecycle.trigger"

	HTTPRouteKey = "http.route"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// SessionAttributes describes a client session. Empty values are omitted.
func SessionAttributes(sessionID, client string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	if client != "" {
		attrs = append(attrs, attribute.String(SessionClientKey, client))
	}
	return attrs
}

// LifecycleAttributes describes a shutdown or restart sequence.
func LifecycleAttributes(trigger string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String(LifecycleTriggerKey, trigger)}
}

// ErrorAttributes marks a span as failed with a coarse error class.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
