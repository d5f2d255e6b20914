package queue

import (
	"strings"

	"postoffice/internal/types"
)

// DataAvailableQueue receives notifications from every producing subsystem.
const DataAvailableQueue = "sbq-dataavailable"

func originSlug(origin types.Origin) string {
	return "sbq-" + strings.ToLower(string(origin))
}

// RequestQueue is where content requests for origin are sent.
func RequestQueue(origin types.Origin) string {
	return originSlug(origin)
}

// ReplyQueue is where origin answers content requests.
func ReplyQueue(origin types.Origin) string {
	return originSlug(origin) + "-reply"
}

// DequeueQueue receives dequeue notices for origin.
func DequeueQueue(origin types.Origin) string {
	return originSlug(origin) + "-dequeue"
}
