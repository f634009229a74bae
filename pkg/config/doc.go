// Package config provides configuration loading and validation for the
// metering service.
//
// # Loading
//
// Configuration is read from a YAML file, filled with defaults, and
// validated:
//
//	cfg, err := config.LoadConfig("meterd.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// LoadConfigWithEnvOverrides additionally applies environment variables
// of the form METERD_SECTION_FIELD, which always win over the file.
//
// # Plans
//
// The plans section carries the per-action rate limits and per-feature
// daily quotas. PlansConfig.ToPlans converts it into the runtime plan
// set. When plans.watch is enabled, a FileWatcher reloads the file on
// change and the new plans are swapped into the running meter without a
// restart; limit state in the store is untouched by a reload.
//
// # Example
//
//	server:
//	  listen_address: "0.0.0.0:8080"
//	storage:
//	  backend: sqlite
//	  state_path: data/meter.db
//	  usage_path: data/usage.db
//	plans:
//	  watch: true
//	  actions:
//	    chat:completions:
//	      limit: 60
//	      window: 1m
//	  features:
//	    chat:
//	      daily_limit: 200000
//	      monetary: true
//	      estimated_cost_cents: 5
package config
