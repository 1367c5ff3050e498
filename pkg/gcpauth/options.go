// Package gcpauth turns GCP config into client options shared by the Pub/Sub
// and BigQuery clients.
package gcpauth

import (
	"strings"

	"google.golang.org/api/option"

	"github.com/angelmondragon/rosca-settlement/pkg/config"
)

// ClientOptions prefers inline JSON credentials, then a credentials file. With
// neither set the libraries fall back to application default credentials.
func ClientOptions(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}
