// Package config provides configuration management for ticketsync.
//
// A single Config structure is shared by every command. It is organized in
// sections: Source, Reliability, State, Output and Observability.
//
// # Loading
//
//	cfg, err := config.Load("ticketsync.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Load accepts YAML or JSON. Values may reference the environment with
// ${VAR_NAME}, and any key can be overridden with a TICKETSYNC_ prefixed
// variable where dots become underscores:
//
//	TICKETSYNC_SOURCE_ACCESS_TOKEN=... ticketsync sync --config c.yaml
//
// # Flat configs
//
// Single-level configs are accepted as well; source keys found at the top
// level are moved under source:
//
//	{"subdomain": "acme", "start_date": "2020-01-01T00:00:00Z",
//	 "access_token": "...", "request_timeout": 300}
//
// request_timeout accepts a duration ("90s") or bare seconds. Zero, empty or
// unparsable values fall back to DefaultRequestTimeout.
//
// # Authentication
//
// An OAuth access_token takes precedence over email plus api_token. Validate
// rejects a config that carries neither.
package config
