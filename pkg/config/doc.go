// Package config provides configuration management for certwatch.
//
// Configuration is read from a YAML file, completed with defaults,
// overridden from the environment and validated as a whole.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("certwatch.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("certwatch.yaml")
//
// An empty path loads the defaults.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention CERTWATCH_SECTION_FIELD:
//
//   - CERTWATCH_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - CERTWATCH_SERVER_TLS_KEY_STORE overrides server.tls.key_store
//   - CERTWATCH_CLIENT_TLS_TRUST_STORE overrides client.tls.trust_store
//   - CERTWATCH_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Singleton Pattern
//
//	if err := config.Initialize("certwatch.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg := config.GetConfig()
//
// # Validation
//
// Store locations are resolved but not read, so a configuration can be
// validated on a machine that does not hold the credentials:
//
//	configuration validation failed with 2 errors:
//	  - server.tls.key_store: invalid key_store location "https://...": unsupported scheme "https"
//	  - server.tls.min_version: invalid TLS version "1.0": must be '1.2' or '1.3'
//
// # Example Configuration
//
//	server:
//	  listen_address: "0.0.0.0:8443"
//	  tls:
//	    key_store: "/etc/certwatch/server.pem"
//	    trust_store: "/etc/certwatch/clients-ca.pem"
//	    client_auth_type: "verify_if_given"
//	    reload_schedule: "@every 15m"
//
//	client:
//	  target: "https://api.internal:8443/"
//	  tls:
//	    key_store: "/etc/certwatch/client.pem"
//	    trust_store: "/etc/certwatch/ca.pem"
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
package config
