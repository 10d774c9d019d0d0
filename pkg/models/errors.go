package models

import "errors"

var (
	// ErrPolicy is returned when a safety gate rejects the request before any I/O
	ErrPolicy = errors.New("policy violation")
	// ErrConfiguration is returned for invalid operation kinds or parameters
	ErrConfiguration = errors.New("invalid configuration")
	// ErrEncoding is returned for malformed transaction payloads
	ErrEncoding = errors.New("malformed encoding")
	// ErrAccountNotFound is returned when the source account is unfunded or missing
	ErrAccountNotFound = errors.New("account not found")
	// ErrSubmissionRejected is returned when the network refuses a transaction
	ErrSubmissionRejected = errors.New("submission rejected")
	// ErrTransactionFailed is returned when a submitted transaction was included but failed
	ErrTransactionFailed = errors.New("transaction failed")
	// ErrNetworkTimeout is returned when confirmation polling exhausts its budget
	ErrNetworkTimeout = errors.New("confirmation timed out")
	// ErrSimulationFailed is returned when pre-flight simulation reports an error
	ErrSimulationFailed = errors.New("simulation failed")
	// ErrProtocol is returned when the network or router violates the expected sequence
	ErrProtocol = errors.New("protocol violation")
)
