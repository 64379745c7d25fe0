// Package config handles loading and validating the mesh commissioning
// service configuration.
//
// Load order:
//
//	defaults ──▶ YAML file ──▶ GRAYLOGIC_* environment ──▶ Validate
//
// Validate reports every problem at once ("configuration errors: a; b").
//
// The mesh section carries the commissioning parameters (UUID family prefix,
// groups, key indexes, decoder limits, retry budget, publication and
// heartbeat parameters). Its defaults match the values a stock installation
// uses, so a config file only needs the JWT secret.
//
// Security Considerations:
//   - Sensitive values (passwords, tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	primary, secondary, err := cfg.Mesh.Groups()
package config
