// Copyright (c) 2025 The Pura Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package privatepay

import "fmt"

// MinPeerProtoVersion is the lowest peer protocol version that understands
// the PrivatePay message set. Messages from older peers are dropped.
const MinPeerProtoVersion = 70208

// Command strings, matching the host daemon's message-framing convention
// one-to-one with the wire tags named in the protocol spec.
const (
	CmdAccept = "ppaccept"
	CmdQueue  = "ppqueue"
	CmdEntry  = "ppvin"
	CmdStatus = "ppstatusupdate"
	CmdFinal  = "ppfinaltx"
	CmdSign   = "ppsignfinaltx"
	CmdComplete = "ppcomplete"
	CmdBroadcast = "pptx"
)

// PoolState is the enum driving both the coordinator's and the client's
// session state machine. The numeric range is fixed at 0..5 so that a peer
// can bounds-check an incoming STATUS message's state field without
// depending on iota ordering elsewhere in the program.
type PoolState int

const (
	PoolStateIdle PoolState = iota
	PoolStateQueue
	PoolStateAcceptingEntries
	PoolStateSigning
	PoolStateError
	PoolStateSuccess

	// PoolStateMin and PoolStateMax bound the legal wire encoding of
	// PoolState; a STATUS message outside this range is a protocol
	// violation and is dropped.
	PoolStateMin = PoolStateIdle
	PoolStateMax = PoolStateSuccess
)

func (s PoolState) String() string {
	switch s {
	case PoolStateIdle:
		return "IDLE"
	case PoolStateQueue:
		return "QUEUE"
	case PoolStateAcceptingEntries:
		return "ACCEPTING_ENTRIES"
	case PoolStateSigning:
		return "SIGNING"
	case PoolStateError:
		return "ERROR"
	case PoolStateSuccess:
		return "SUCCESS"
	default:
		return "UNKNOWN"
	}
}

// PoolStatusUpdate is the accepted/rejected flag carried in a STATUS
// message.
type PoolStatusUpdate int

const (
	StatusRejected PoolStatusUpdate = iota
	StatusAccepted

	StatusUpdateMin = StatusRejected
	StatusUpdateMax = StatusAccepted
)

// PoolMessage is the closed set of error/success identifiers exchanged in
// STATUS and COMPLETE messages.
type PoolMessage int

const (
	ErrAlreadyHave PoolMessage = iota
	ErrDenom
	ErrEntriesFull
	ErrExistingTx
	ErrFees
	ErrInvalidCollateral
	ErrInvalidInput
	ErrInvalidScript
	ErrInvalidTx
	ErrMaximum
	ErrMnList
	ErrMode
	ErrNonStandardPubkey
	ErrQueueFull
	ErrRecent
	ErrSession
	ErrMissingTx
	ErrVersion
	MsgNoErr
	MsgSuccess
	MsgEntriesAdded

	msgPoolMin = ErrAlreadyHave
	msgPoolMax = MsgEntriesAdded
)

// IsValidPoolMessage reports whether id falls within the closed taxonomy,
// as required before trusting an inbound STATUS/COMPLETE message.
func IsValidPoolMessage(id PoolMessage) bool {
	return id >= msgPoolMin && id <= msgPoolMax
}

func (m PoolMessage) String() string {
	switch m {
	case ErrAlreadyHave:
		return "Already have that input."
	case ErrDenom:
		return "No matching denominations found for mixing."
	case ErrEntriesFull:
		return "Entries are full."
	case ErrExistingTx:
		return "Not compatible with existing transactions."
	case ErrFees:
		return "Transaction fees are too high."
	case ErrInvalidCollateral:
		return "Collateral not valid."
	case ErrInvalidInput:
		return "Input is not valid."
	case ErrInvalidScript:
		return "Invalid script detected."
	case ErrInvalidTx:
		return "Transaction not valid."
	case ErrMaximum:
		return "Entry exceeds maximum size."
	case ErrMnList:
		return "Not in the Masternode list."
	case ErrMode:
		return "Incompatible mode."
	case ErrNonStandardPubkey:
		return "Non-standard public key detected."
	case ErrQueueFull:
		return "Masternode queue is full."
	case ErrRecent:
		return "Last PrivatePay was too recent."
	case ErrSession:
		return "Session not complete!"
	case ErrMissingTx:
		return "Missing input transaction information."
	case ErrVersion:
		return "Incompatible version."
	case MsgNoErr:
		return "No errors detected."
	case MsgSuccess:
		return "Transaction created successfully."
	case MsgEntriesAdded:
		return "Your entries added successfully."
	default:
		return "Unknown response."
	}
}

// PoolError wraps a PoolMessage as a Go error for callers that want to use
// %w/errors.Is against the taxonomy.
type PoolError struct {
	ID PoolMessage
}

func (e *PoolError) Error() string {
	return fmt.Sprintf("privatepay: %s", e.ID)
}

// MaxPoolTransactions is the number of entries a session must collect
// before the coordinator finalizes the joint transaction.
const MaxPoolTransactions = 3

// EntryMaxSize bounds the number of inputs or outputs a single ENTRY may
// contain.
const EntryMaxSize = 9

// QueueTimeoutSeconds is the time a non-SIGNING session may sit without progress
// before it is reset to ERROR.
const QueueTimeoutSeconds = 30

// SigningTimeoutSeconds is the time a SIGNING session may sit without collecting
// all signatures before it is reset to ERROR.
const SigningTimeoutSeconds = 15

// QueueAdTTLSeconds is how long a queue advertisement remains usable after
// it was created.
const QueueAdTTLSeconds = 30

// ResetGraceMillis is how long a terminal (SUCCESS/ERROR) session lingers
// before being reset to IDLE.
const ResetGraceMillis = 10000

// ClientLagMillis is added to the timeout budget on the client side, since
// the coordinator is given first refusal on declaring a timeout.
const ClientLagMillis = 10000

// KeysThresholdStop and KeysThresholdWarning gate automatic mixing on the
// health of the wallet's keypool, per the original's automatic-backup
// check.
const (
	KeysThresholdStop    = 5
	KeysThresholdWarning = 100
)

// AutoDenominateMinTicks and AutoDenominateMaxTicks bound the number of
// 1 Hz client ticks between automatic denominating attempts. The client
// tick loop waits a randomized interval in this range after each attempt,
// successful or not, before trying again.
const (
	AutoDenominateMinTicks = 5
	AutoDenominateMaxTicks = 15
)
