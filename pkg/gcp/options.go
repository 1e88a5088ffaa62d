// Package gcp holds the credential plumbing shared by the Google Cloud clients.
package gcp

import (
	"errors"
	"strings"

	"google.golang.org/api/option"

	"github.com/agrimarket/fulfillment-backend/pkg/config"
)

var ErrProjectIDRequired = errors.New("gcp project id is required")

// ProjectID returns the trimmed project id or ErrProjectIDRequired.
func ProjectID(cfg config.GCPConfig) (string, error) {
	id := strings.TrimSpace(cfg.ProjectID)
	if id == "" {
		return "", ErrProjectIDRequired
	}
	return id, nil
}

// ClientOptions prefers inline credentials JSON over a credentials file. With
// neither set the clients fall back to application default credentials.
func ClientOptions(cfg config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))}
	case strings.TrimSpace(cfg.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(strings.TrimSpace(cfg.ApplicationCredentials))}
	default:
		return nil
	}
}

// ResourceName expands a short name to projects/<project>/<collection>/<name>.
// Names that are already fully qualified pass through unchanged.
func ResourceName(project, collection, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+collection+"/") {
		return name
	}
	project = strings.TrimSpace(project)
	if project == "" {
		return ""
	}
	return "projects/" + project + "/" + collection + "/" + name
}
