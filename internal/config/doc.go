// Package config provides configuration management for sifter.
// It reads an optional YAML file and SIFTER_ environment variables and
// validates every parameter.
//
// # Configuration Loading
//
//	cfg, err := config.Load("/etc/sifter.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	settings, err := cfg.Settings()
//
// An empty path falls back to SIFTER_CONFIG; without either only defaults
// and the environment apply.
//
// # Environment Variables
//
//	SIFTER_CONFIG            YAML configuration file
//	SIFTER_WORKERS           Number of file workers (default: min(8, CPU cores))
//	SIFTER_MAX_DEPTH         Maximum folder depth (0 for unlimited)
//	SIFTER_LEVEL             Search level: basic|advanced|deep
//	SIFTER_EXCLUDE           Comma-separated excluded path prefixes
//	SIFTER_EXCLUDE_PATTERNS  Comma-separated excluded name patterns
//	SIFTER_NETWORK_MOUNTS    Comma-separated extra network prefixes
//	SIFTER_OUTPUT            Output format: list|json|yaml
//	SIFTER_OUTPUT_FILE       Output file path (empty for stdout)
//	SIFTER_SKIP_LOG          File that records skipped files
//	SIFTER_RATE_LIMIT        File tasks per second (0 for unlimited)
//	SIFTER_CHUNK_SIZE        Content read size in bytes
//	SIFTER_MAX_CONTENT_SIZE  Skip content analysis above this size, e.g. 1GiB
//	SIFTER_MAX_FILES         Stop after checking this many files (0 for no cap)
//	SIFTER_USE_INDEX         Answer name-only searches from the locate database
//	SIFTER_TIMEOUTS_FILE     Base per-file timeout, e.g. 30s
//	SIFTER_TIMEOUTS_OVERALL  Whole search timeout (0 for none)
//	SIFTER_MEMORY_POLICY     automatic|manual
//	SIFTER_MEMORY_CEILING    Fixed automatic memory ceiling, e.g. 600MiB
//	SIFTER_NO_PROGRESS       Disable progress reporting (true/false)
//	SIFTER_NO_COLOR          Disable colored output (true/false)
//	SIFTER_VERBOSE           Verbosity level (number or string of 'v's)
//	SIFTER_LOG_FORMAT        console|json
//	SIFTER_LOG_FILE          Append logs to this file
//
// Every nested key can be set the same way, replacing dots with
// underscores: thresholds.huge becomes SIFTER_THRESHOLDS_HUGE.
//
// # Configuration File
//
//	workers: 6
//	level: advanced
//	exclude: [/proc, /sys]
//	extensions:
//	  basic: [txt, md, log]
//	  advanced: [txt, md, log, pdf, docx, eml]
//	thresholds:
//	  medium: 10MiB
//	  large: 50MiB
//	  huge: 500MiB
//	  gigantic: 2GiB
//	gigantic:
//	  binary_cutoff: 5GiB
//	timeouts:
//	  file: 30s
//	  container: 2m
//	memory:
//	  policy: manual
//	  percent: 0.75
//	watchdog:
//	  stall_time: 3m
//
// Sizes accept plain byte counts or humanized values (KiB, MiB, GiB, or
// the decimal KB, MB, GB).
//
// # Configuration Validation
//
//   - Workers must be positive and at most 32
//   - MaxDepth must be 0 (unlimited) or positive
//   - Output format must be one of: list, json, yaml
//   - Level and extension keys must be basic, advanced or deep
//   - Size thresholds must be strictly increasing
//   - ChunkSize must be at least 4KiB when set
//   - The file timeout must be positive
//   - Memory policy must be automatic or manual
package config
