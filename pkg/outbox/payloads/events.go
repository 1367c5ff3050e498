package payloads

import "github.com/google/uuid"

// NotificationRequested asks the notification service to message a set of users.
// Body text is member facing and never carries gateway output.
type NotificationRequested struct {
	UserIDs []uuid.UUID       `json:"userIds"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Data    map[string]string `json:"data,omitempty"`
}
