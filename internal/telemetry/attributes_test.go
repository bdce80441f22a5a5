// SPDX-License-Identifier: MIT

package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSessionAttributes_OmitsEmpty(t *testing.T) {
	assert.Empty(t, SessionAttributes("", ""))
	assert.Equal(t,
		[]attribute.KeyValue{attribute.String(SessionIDKey, "s-1")},
		SessionAttributes("s-1", ""))
	assert.Equal(t, []attribute.KeyValue{
		attribute.String(SessionIDKey, "s-1"),
		attribute.String(SessionClientKey, "quest"),
	}, SessionAttributes("s-1", "quest"))
}

func TestLifecycleAttributes(t *testing.T) {
	attrs := LifecycleAttributes("restart")
	assert.Equal(t, attribute.String(LifecycleTriggerKey, "restart"), attrs[0])
}

func TestErrorAttributes(t *testing.T) {
	attrs := ErrorAttributes("handshake")
	assert.Equal(t, []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, "handshake"),
	}, attrs)
}
