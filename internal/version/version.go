package version

var (
	// Version is the current driver version.
	// It should be populated by the build system (ldflags).
	Version = "v0.4.0"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)

// ProtocolVersion is the handshake version a client must announce.
// Clients announcing a different value are rejected during negotiation.
const ProtocolVersion = "vrlink/1"
