package bridge

import (
	"fmt"
)

// Phase names the step of a run in which it stopped
type Phase string

const (
	PhasePolicy      Phase = "policy"
	PhaseValidate    Phase = "validate"
	PhaseLoadAccount Phase = "load_account"
	PhaseBuildMain   Phase = "build_main"
	PhaseSignMain    Phase = "sign_main"
	PhaseSimulate    Phase = "simulate"
	PhaseRestore     Phase = "restore"
	PhaseRebuildMain Phase = "rebuild_main"
	PhaseSubmitMain  Phase = "submit_main"
	PhaseConfirmMain Phase = "confirm_main"
	PhaseEnsureTrust Phase = "ensure_trust"
)

// Error is a failed run. Hash is the transaction that triggered the failure, if any.
// TransferHash is set when the transfer itself was confirmed before a later step
// failed; the funds have moved and the run must not be repeated.
type Error struct {
	Phase        Phase
	Hash         string
	TransferHash string
	Err          error
}

func (e *Error) Error() string {
	if e.TransferHash != "" {
		return fmt.Sprintf("bridge %s failed after confirmed transfer %s: %v", e.Phase, e.TransferHash, e.Err)
	}
	if e.Hash != "" {
		return fmt.Sprintf("bridge %s failed (tx %s): %v", e.Phase, e.Hash, e.Err)
	}
	return fmt.Sprintf("bridge %s failed: %v", e.Phase, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(phase Phase, hash string, err error) *Error {
	return &Error{Phase: phase, Hash: hash, Err: err}
}
