package execution

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
	"github.com/zephyra-labs/zephyra-cli/internal/registry"
	"github.com/zephyra-labs/zephyra-cli/internal/session"
)

// CheckSession rejects writes without a signer or from a wallet on another
// network than the deployment.
func CheckSession(sess session.Session, reg *registry.Registry) error {
	if !sess.Connected() {
		return clierr.New(clierr.CodePreconditionFailed, "connect a wallet first")
	}
	if reg != nil && reg.ChainID() != 0 && sess.ChainID != reg.ChainID() {
		return clierr.New(clierr.CodePreconditionFailed, fmt.Sprintf(
			"wallet is on %s but the deployment is on %s; switch networks before submitting",
			sess.NetworkLabel, reg.Deployment().Network.Label()))
	}
	return nil
}

func RequireAddress(field string, addr common.Address) error {
	if addr == (common.Address{}) {
		return clierr.New(clierr.CodePreconditionFailed, fmt.Sprintf("%s must be a non-zero address", field))
	}
	return nil
}
