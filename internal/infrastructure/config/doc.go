// Package config handles loading and validating smartpot core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overlaying an optional .env file
//   - Overriding with SMARTPOT_* environment variables
//   - Validation of required fields
//
// Sensitive values (SMTP password, webhook URL, JWT secret, InfluxDB token)
// should be supplied through the environment rather than the YAML file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
