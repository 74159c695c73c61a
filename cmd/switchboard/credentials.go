package main

import (
	"os"
	"strings"

	"github.com/switchboard-cli/switchboard/internal/config"
	"github.com/switchboard-cli/switchboard/internal/provider"
)

// envCredentialResolver resolves provider credentials from environment
// variables named SWITCHBOARD_<PROVIDER>_API_KEY / _BASE_URL. Menu-driven
// credential storage is an explicit non-goal of this module; this is the
// minimal concrete seam the router's CredentialResolver interface needs to
// actually dispatch a request.
type envCredentialResolver struct{}

func (envCredentialResolver) Resolve(id config.ProviderId) (provider.Credential, bool) {
	prefix := "SWITCHBOARD_" + strings.ToUpper(string(id))
	apiKey := os.Getenv(prefix + "_API_KEY")
	if apiKey == "" {
		return provider.Credential{}, false
	}
	return provider.Credential{
		APIKey:  apiKey,
		BaseURL: os.Getenv(prefix + "_BASE_URL"),
	}, true
}

// envEndpointResolver supplies the generative adapter's multi-endpoint
// fallback list from SWITCHBOARD_P5_ENDPOINTS (comma-separated), falling
// back to the credential's single BaseURL.
type envEndpointResolver struct{}

func (envEndpointResolver) EndpointsFor(cred provider.Credential) []string {
	if raw := os.Getenv("SWITCHBOARD_P5_ENDPOINTS"); raw != "" {
		var out []string
		for _, e := range strings.Split(raw, ",") {
			if e = strings.TrimSpace(e); e != "" {
				out = append(out, e)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	if cred.BaseURL != "" {
		return []string{cred.BaseURL}
	}
	return nil
}

// procExecCredential resolves the P-exec process-runtime binary path from
// SWITCHBOARD_PEXEC_PATH, defaulting to a binary named "switchboard-exec" on PATH.
func procExecCredential() provider.Credential {
	path := os.Getenv("SWITCHBOARD_PEXEC_PATH")
	if path == "" {
		path = "switchboard-exec"
	}
	return provider.Credential{ProcessPath: path}
}
