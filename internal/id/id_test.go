package id

import (
	"testing"

	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
)

func TestParseNetworkVariants(t *testing.T) {
	n, err := ParseNetwork("Base-Sepolia")
	if err != nil {
		t.Fatalf("ParseNetwork(base-sepolia) failed: %v", err)
	}
	if n.ChainID != 84532 {
		t.Fatalf("unexpected chain id %d", n.ChainID)
	}

	n, err = ParseNetwork("11155111")
	if err != nil {
		t.Fatalf("ParseNetwork(11155111) failed: %v", err)
	}
	if n.Slug != "sepolia" {
		t.Fatalf("unexpected slug %s", n.Slug)
	}

	n, err = ParseNetwork("31337")
	if err != nil {
		t.Fatalf("ParseNetwork(31337) failed: %v", err)
	}
	if n.ChainID != 31337 || n.Label() != "chain 31337" {
		t.Fatalf("unexpected custom network %+v", n)
	}

	if _, err := ParseNetwork("mars"); err == nil {
		t.Fatal("expected error for unknown network")
	}
}

func TestParseDestination(t *testing.T) {
	n, err := ParseDestination("14767482510784806043")
	if err != nil {
		t.Fatalf("ParseDestination(selector) failed: %v", err)
	}
	if n.Slug != "fuji" {
		t.Fatalf("expected fuji, got %s", n.Slug)
	}
	if _, err := ParseDestination("31337"); !clierr.HasCode(err, clierr.CodePreconditionFailed) {
		t.Fatalf("expected PreconditionFailed for non-bridge chain, got %v", err)
	}
	if got := len(BridgeDestinations()); got != 3 {
		t.Fatalf("expected 3 bridge destinations, got %d", got)
	}
}

func TestParseAddress(t *testing.T) {
	if _, err := ParseAddress("receiver", "0x123"); !clierr.HasCode(err, clierr.CodePreconditionFailed) {
		t.Fatalf("expected PreconditionFailed, got %v", err)
	}
	addr, err := ParseAddress("receiver", "0x00000000000000000000000000000000000000aa")
	if err != nil {
		t.Fatalf("ParseAddress failed: %v", err)
	}
	if addr[19] != 0xaa || addr[0] != 0 {
		t.Fatalf("unexpected address %s", addr.Hex())
	}
}
