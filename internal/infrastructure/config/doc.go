// Package config handles loading and validating airlink configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Transport credentials should be set via environment variables
//     (AIRLINK_LOCAL_CREDENTIAL, AIRLINK_CLOUD_CREDENTIAL)
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/airlink.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Device.Serial)
package config
