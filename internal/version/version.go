// Package version reports which agentlink build is running.
//
// Release builds stamp the variables below:
//
//	go build -ldflags "-X github.com/rickgao/agentlink/internal/version.Version=$(git describe --tags) \
//	                   -X github.com/rickgao/agentlink/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/agentlink/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown" // UTC, RFC 3339
)

// String is printed by `agentlink version`.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}

// UserAgent identifies the CLI to the assist backend.
func UserAgent() string {
	return "agentlink/" + Version
}
