// Package version holds build-time version information for the rag binary.
// The variables in this package are populated at build time via -ldflags:
//
//	go build -ldflags="-X github.com/SebastianCielma/RAG/internal/version.Version=1.2.0 \
//	                    -X github.com/SebastianCielma/RAG/internal/version.Commit=abc1234 \
//	                    -X github.com/SebastianCielma/RAG/internal/version.BuildDate=2025-01-01"
//
// When built without ldflags (e.g. `go run`), the values fall back to
// defaults so the binary is always usable and /health stays truthful.
package version

// Service is the canonical service name reported by the health endpoint.
const Service = "rag-api"

// Version is the semantic version of the binary.
// Set at build time via -ldflags. Defaults to the last tagged release.
var Version = "1.1.0"

// Commit is the short git SHA of the commit the binary was built from.
// Set at build time via -ldflags. Defaults to "unknown".
var Commit = "unknown"

// BuildDate is the UTC date the binary was built (RFC3339 format).
// Set at build time via -ldflags. Defaults to "unknown".
var BuildDate = "unknown"

// UserAgent returns the User-Agent string sent on outbound HTTP calls
// to embedding and inference backends.
func UserAgent() string {
	return Service + "/" + Version
}
