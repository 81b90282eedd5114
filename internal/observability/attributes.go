// Package observability provides metrics utilities for the exporter.
package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrOp      = "op"
	attrStatus  = "status"
	attrFormat  = "format"
	attrSuccess = "success"
)

func opAttr(op string) attribute.KeyValue {
	return attribute.String(attrOp, op)
}

func statusAttr(code int) attribute.KeyValue {
	// Status 0 means the request never produced a response (transport fault).
	if code == 0 {
		return attribute.String(attrStatus, "transport")
	}
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

func formatAttr(format string) attribute.KeyValue {
	return attribute.String(attrFormat, format)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}
