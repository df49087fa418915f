// Package config loads the server configuration from AGORA_* environment
// variables, after an optional .env file.
//
// Each section maps to a prefix, e.g. AGORA_SESSION_SECRET,
// AGORA_STORAGE_S3_BUCKET or AGORA_OBSERVABILITY_OTEL_ENDPOINT. Variables
// already set in the process take precedence over the .env file.
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
