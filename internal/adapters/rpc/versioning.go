package rpc

const LatestProtocolVersion = "2025-03-26"

// Newest first.
var supportedProtocolVersions = []string{
	LatestProtocolVersion,
	"2024-11-05",
}

// NegotiateProtocolVersion echoes the client's requested version when this
// server speaks it and falls back to the latest supported version otherwise.
func NegotiateProtocolVersion(requested string) string {
	for _, v := range supportedProtocolVersions {
		if v == requested {
			return v
		}
	}
	return LatestProtocolVersion
}

func SupportedProtocolVersions() []string {
	return append([]string(nil), supportedProtocolVersions...)
}
