package app

import "github.com/spf13/pflag"

// RegisterFlags registers all CLI flags on the given FlagSet.
// Zero values mean "not set"; defaults live in config.LoadSettingsWithFlags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("transport", "t", "", "Transport type: stdio or sse")
	flags.StringP("host", "H", "", "Host for SSE transport")
	flags.IntP("port", "p", 0, "Port for SSE transport")
	flags.StringP("auth-type", "a", "", "Authentication type: none, basic, or apikey")
	flags.StringP("auth-basic-username", "u", "", "Basic auth username")
	flags.StringP("auth-basic-password", "P", "", "Basic auth password")
	flags.StringSliceP("auth-api-keys", "k", nil, "API keys (comma-separated)")

	// Search
	flags.StringP("root-dir", "r", "", "Directory whose immediate subdirectories are the searchable git repositories (default: current directory)")
	flags.IntP("context-lines", "C", 0, "Lines of context around each match (default: 3)")
	flags.IntP("max-parallel", "j", 0, "Maximum repositories searched concurrently (default: 4)")
	flags.Duration("command-timeout", 0, "Timeout for a single git grep invocation (default: 30s)")
	flags.Int("default-count", 0, "Results per page when a request does not specify a count (default: 20)")
	flags.Int("max-count", 0, "Upper bound on results per page (default: 200)")
	flags.Int64("max-blob-size", 0, "Largest file view_blob will return, in bytes (default: 262144)")

	flags.Bool("metrics-enabled", false, "Serve Prometheus metrics at /metrics (SSE transport only)")
}
