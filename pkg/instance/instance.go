// Package instance names the running process for lock tokens and log fields.
package instance

import (
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/angelmondragon/rosca-settlement/pkg/env"
)

var (
	once sync.Once
	id   string
)

// GetID returns ROSCA_WORKER_ID when set, else the hostname (the pod name on
// Kubernetes), else a random id fixed for the life of the process.
func GetID() string {
	once.Do(func() {
		id = env.First("", "ROSCA_WORKER_ID", "WORKER_ID")
		if id != "" {
			return
		}
		if host, err := os.Hostname(); err == nil && host != "" {
			id = host
			return
		}
		id = "worker-" + uuid.NewString()[:8]
	})
	return id
}
