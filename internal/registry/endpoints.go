package registry

import (
	"net"
	"net/url"
	"strings"
)

const (
	CCIPExplorerBaseURL = "https://ccip.chain.link"
	DefaultIPFSGateway  = "https://ipfs.io/ipfs/"
)

// CCIPMessageURL links a CCIP message id on the public explorer.
func CCIPMessageURL(messageID string) string {
	return CCIPExplorerBaseURL + "/msg/" + strings.TrimSpace(messageID)
}

// CCIPTxURL links a source-chain transaction hash on the public explorer.
func CCIPTxURL(txHash string) string {
	return CCIPExplorerBaseURL + "/tx/" + strings.TrimSpace(txHash)
}

// IsAllowedGatewayURL reports whether an off-chain metadata endpoint may be
// fetched: https anywhere, plain http only on loopback.
func IsAllowedGatewayURL(endpoint string) bool {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return false
	}
	if strings.TrimSpace(parsed.Hostname()) == "" {
		return false
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if isLoopbackHost(parsed.Hostname()) {
		return scheme == "http" || scheme == "https"
	}
	return scheme == "https"
}

// NormalizeGateway ensures the gateway ends with a single slash so CIDs can be
// appended directly.
func NormalizeGateway(gateway string) string {
	g := strings.TrimSpace(gateway)
	if g == "" {
		return DefaultIPFSGateway
	}
	return strings.TrimRight(g, "/") + "/"
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
