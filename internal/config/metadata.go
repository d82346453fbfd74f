package config

import (
	"os"

	"github.com/google/uuid"
)

// ciEnvVars maps metadata keys to the CI environment variables they are
// read from. Values are forwarded verbatim to the control plane on every
// call for observability.
var ciEnvVars = map[string]string{
	"repository":  "GITHUB_REPOSITORY",
	"ref":         "GITHUB_REF",
	"sha":         "GITHUB_SHA",
	"workflowRun": "GITHUB_RUN_ID",
	"runAttempt":  "GITHUB_RUN_ATTEMPT",
	"actor":       "GITHUB_ACTOR",
}

// BuildRunnerMetadata collects environment-derived identity strings plus a
// per-process instance id. Unset variables are omitted.
func BuildRunnerMetadata() map[string]string {
	meta := map[string]string{
		"runnerInstanceId": uuid.NewString(),
	}
	for key, env := range ciEnvVars {
		if v := os.Getenv(env); v != "" {
			meta[key] = v
		}
	}
	return meta
}
