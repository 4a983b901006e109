package credential

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/iterator"

	"github.com/sing3demons/weather/kp/internal/apperr"
	"github.com/sing3demons/weather/kp/pkg/logAction"
	"github.com/sing3demons/weather/kp/pkg/logger"
	"github.com/sing3demons/weather/kp/pkg/mlog"
)

// SecretManagerSource assembles the credential from four Secret Manager
// secrets named <prefix>-team-id, <prefix>-service-id, <prefix>-key-id and
// <prefix>-private-key. The newest enabled version of each secret wins, so
// rotating a key is adding a version and disabling the old one.
type SecretManagerSource struct {
	project string
	prefix  string
}

func NewSecretManagerSource(project, prefix string) *SecretManagerSource {
	if prefix == "" {
		prefix = "weather"
	}
	return &SecretManagerSource{project: project, prefix: prefix}
}

func (s *SecretManagerSource) Load(ctx context.Context) (*Credential, error) {
	if s.project == "" {
		return nil, apperr.NewConfigError("GCP_PROJECT is not configured", nil)
	}
	log := mlog.L(ctx)

	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency: "secret-manager",
	}).Debug(logAction.HTTP_REQUEST("access weather secrets"), map[string]any{
		"project": s.project,
		"prefix":  s.prefix,
	})

	start := time.Now()
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, apperr.NewNetworkError("secret manager client", err)
	}
	defer client.Close()

	cred := &Credential{Active: true}
	fields := []struct {
		name string
		dst  *string
	}{
		{"team-id", &cred.TeamID},
		{"service-id", &cred.ServiceID},
		{"key-id", &cred.KeyID},
		{"private-key", &cred.PrivateKeyPEM},
	}
	for _, f := range fields {
		value, err := s.access(ctx, client, f.name)
		if err != nil {
			log.SetDependencyMetadata(logger.DependencyMetadata{
				Dependency:   "secret-manager",
				ResponseTime: time.Since(start).Milliseconds(),
				ResultFlag:   "ERROR",
			}).Error(logAction.HTTP_RESPONSE("access weather secrets"), map[string]any{
				"secret": fmt.Sprintf("%s-%s", s.prefix, f.name),
				"error":  err.Error(),
			})
			return nil, apperr.NewConfigError(fmt.Sprintf("secret %s-%s unavailable", s.prefix, f.name), err)
		}
		*f.dst = value
	}

	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency:   "secret-manager",
		ResponseTime: time.Since(start).Milliseconds(),
		ResultCode:   "200",
		ResultFlag:   "SUCCESS",
	}).Debug(logAction.HTTP_RESPONSE("access weather secrets"), map[string]any{
		"keyId":       cred.KeyID,
		"fingerprint": cred.Fingerprint(),
	})

	return cred, nil
}

func (s *SecretManagerSource) access(ctx context.Context, client *secretmanager.Client, name string) (string, error) {
	secret := fmt.Sprintf("projects/%s/secrets/%s-%s", s.project, s.prefix, name)
	version, err := s.latestEnabledVersion(ctx, client, secret)
	if err != nil {
		// The list call needs a broader role than access; fall back to the
		// latest alias so access-only service accounts still work.
		version = secret + "/versions/latest"
	}
	res, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: version})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(res.Payload.Data)), nil
}

func (s *SecretManagerSource) latestEnabledVersion(ctx context.Context, client *secretmanager.Client, secret string) (string, error) {
	it := client.ListSecretVersions(ctx, &secretmanagerpb.ListSecretVersionsRequest{Parent: secret})
	var best string
	var bestN int
	for {
		v, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", err
		}
		if v.State != secretmanagerpb.SecretVersion_ENABLED {
			continue
		}
		n, err := strconv.Atoi(v.Name[strings.LastIndex(v.Name, "/")+1:])
		if err != nil {
			continue
		}
		if n > bestN {
			bestN = n
			best = v.Name
		}
	}
	if best == "" {
		return "", fmt.Errorf("no enabled versions for %s", secret)
	}
	return best, nil
}
