// Package config loads and validates lockgate configuration.
//
// Values come from three layers, each overriding the last: built-in
// defaults, the YAML file, then LOCKGATE_* environment variables. Validate
// reports every problem at once rather than stopping at the first.
//
// Security Considerations:
//   - Secrets (share codes, account password, JWT secret, tokens) belong in
//     environment variables or a file with 0600 permissions
//   - The JWT secret is mandatory while the API is enabled, because the API
//     can open doors
//
// Usage:
//
//	cfg, err := config.Load(config.PathFromEnv())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Gateway.Host, cfg.Polling.Interval)
package config
