// Copyright (c) 2025 The Pura Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package privatepay

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// Coordinator runs the masternode side of a single PrivatePay session: it
// accepts QUEUE/ACCEPT requests, collects ENTRY submissions, finalizes and
// relays the joint transaction, and collects signatures before
// broadcasting. Exactly one session is active at a time, matching the
// original's single global CPrivatePayServer instance.
type Coordinator struct {
	mu sync.Mutex

	state        PoolState
	sessionID    int
	sessionDenom DenomMask
	entries      []*PoolEntry
	collaterals  []*wire.MsgTx
	finalTx      *wire.MsgTx
	lastStep     time.Time

	// Self identifies this coordinator on the wire: the outpoint of its
	// own masternode collateral and the keypair used to sign queue
	// advertisements and broadcast records.
	Self    wire.OutPoint
	PrivKey *btcec.PrivateKey
	PubKey  *btcec.PublicKey

	Chain    ChainClient
	Peers    PeerNotifier
	Registry Registry
	Queues   *QueueStore
	Pptx     *BroadcastTxStore
	Config   Config
	Clock    Clock
}

// NewCoordinator returns an idle Coordinator wired to the given
// collaborators.
func NewCoordinator(self wire.OutPoint, priv *btcec.PrivateKey, chain ChainClient, peers PeerNotifier, registry Registry, cfg Config) *Coordinator {
	return &Coordinator{
		Self:     self,
		PrivKey:  priv,
		PubKey:   priv.PubKey(),
		Chain:    chain,
		Peers:    peers,
		Registry: registry,
		Queues:   NewQueueStore(),
		Pptx:     NewBroadcastTxStore(),
		Config:   cfg,
		Clock:    realClock{},
		lastStep: time.Now(),
	}
}

func (c *Coordinator) now() time.Time {
	if c.Clock != nil {
		return c.Clock.Now()
	}
	return time.Now()
}

// reset clears the session back to IDLE. Must be called with mu held.
func (c *Coordinator) reset() {
	c.state = PoolStateIdle
	c.sessionID = 0
	c.sessionDenom = 0
	c.entries = nil
	c.collaterals = nil
	c.finalTx = nil
	c.lastStep = c.now()
}

// setState transitions the coordinator's state, refusing to set ERROR or
// SUCCESS: ERROR is assigned directly only by commitFinalTransaction's
// failure path and by CheckTimeout, and a successful commit returns the
// session straight to IDLE without passing through SUCCESS.
func (c *Coordinator) setState(s PoolState) {
	if s == PoolStateError || s == PoolStateSuccess {
		return
	}
	c.state = s
}

// State returns the coordinator's current session state.
func (c *Coordinator) State() PoolState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// entriesCount returns the number of entries collected so far. Must be
// called with mu held.
func (c *Coordinator) entriesCount() int {
	return len(c.entries)
}

// isSessionReady reports whether enough participants have committed
// collateral to move the session from QUEUE to ACCEPTING_ENTRIES. Must be
// called with mu held.
func (c *Coordinator) isSessionReady() bool {
	return len(c.collaterals) >= MaxPoolTransactions
}

// HandleAccept processes an inbound ACCEPT request for the given
// denomination and collateral, creating a new session or joining the
// current one. It returns the status to report back to the submitting
// peer.
func (c *Coordinator) HandleAccept(denom DenomMask, collateral *wire.MsgTx, fetch PrevOutFetcher, accept MempoolAccepter) (PoolStatusUpdate, PoolMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isSessionReady() {
		return StatusRejected, ErrQueueFull
	}

	if c.Registry != nil {
		if _, _, ok := c.Registry.Self(); !ok {
			return StatusRejected, ErrMnList
		}
	}

	var (
		ok  bool
		msg PoolMessage = MsgNoErr
	)
	if c.sessionID == 0 {
		ok, msg = c.createNewSession(denom, collateral, fetch, accept)
	} else {
		ok, msg = c.addUserToExistingSession(denom, collateral, fetch, accept)
	}

	if ok {
		return StatusAccepted, msg
	}
	return StatusRejected, msg
}

// isAcceptableDenomAndCollateral validates a session-opening/joining
// request's denomination and collateral. Must be called with mu held.
func (c *Coordinator) isAcceptableDenomAndCollateral(denom DenomMask, collateral *wire.MsgTx, fetch PrevOutFetcher, accept MempoolAccepter) PoolMessage {
	if _, ok := MaskToBits(denom); !ok {
		return ErrDenom
	}
	if !c.Config.UnitTest && !IsCollateralValid(collateral, fetch, accept) {
		return ErrInvalidCollateral
	}
	return MsgNoErr
}

// createNewSession opens a fresh session at the requested denomination.
// Must be called with mu held.
func (c *Coordinator) createNewSession(denom DenomMask, collateral *wire.MsgTx, fetch PrevOutFetcher, accept MempoolAccepter) (bool, PoolMessage) {
	if c.sessionID != 0 {
		return false, MsgNoErr
	}
	if c.state != PoolStateIdle {
		return false, ErrMode
	}
	if msg := c.isAcceptableDenomAndCollateral(denom, collateral, fetch, accept); msg != MsgNoErr {
		return false, msg
	}
	if c.Queues.WouldRateLimit(c.Self, c.enabledMasternodes()) {
		return false, ErrRecent
	}

	c.sessionID = rand.Intn(999999) + 1
	c.sessionDenom = denom
	c.setState(PoolStateQueue)
	c.lastStep = c.now()

	if !c.Config.UnitTest {
		ad := &QueueAdvertisement{Vin: c.Self, Denom: denom, Time: c.now().Unix(), Ready: false}
		ad.Sign(c.PrivKey)
		if c.Peers != nil {
			c.Peers.RelayQueue(ad)
		}
		c.Queues.Add(ad, c.enabledMasternodes())
	}

	c.collaterals = append(c.collaterals, collateral)
	return true, MsgNoErr
}

// addUserToExistingSession joins the current session, provided it is
// still in QUEUE state and the denomination matches. Must be called with
// mu held.
func (c *Coordinator) addUserToExistingSession(denom DenomMask, collateral *wire.MsgTx, fetch PrevOutFetcher, accept MempoolAccepter) (bool, PoolMessage) {
	if c.sessionID == 0 || c.isSessionReady() {
		return false, MsgNoErr
	}
	if msg := c.isAcceptableDenomAndCollateral(denom, collateral, fetch, accept); msg != MsgNoErr {
		return false, msg
	}
	if c.state != PoolStateQueue {
		return false, ErrMode
	}
	if denom != c.sessionDenom {
		return false, ErrDenom
	}

	c.lastStep = c.now()
	c.collaterals = append(c.collaterals, collateral)
	return true, MsgNoErr
}

// enabledMasternodes is a small helper over the registry, defaulting to 0
// (no rate-limit exemption) when no registry is wired.
func (c *Coordinator) enabledMasternodes() int {
	if c.Registry == nil {
		return 0
	}
	return c.Registry.Count()
}

// outputsCompatibleWithSessionDenom reports whether outs denominate to
// exactly the session's active denomination, and matches every already
// accepted entry's denomination too. Must be called with mu held.
func (c *Coordinator) outputsCompatibleWithSessionDenom(outs []*wire.TxOut) bool {
	d := DenominationsToMask(outs)
	if d == 0 || d != c.sessionDenom {
		return false
	}
	for _, e := range c.entries {
		if DenominationsToMask(e.outputsAsWire()) != d {
			return false
		}
	}
	return true
}

// HandleEntry validates and, if acceptable, records a client's ENTRY
// submission. fetch/accept back the "check it like a transaction" step:
// resolve each input's previous output and confirm the assembled
// transaction would be accepted into the mempool. participant is the
// submitting peer's address, used to route STATUS/FINAL/COMPLETE back to
// it.
func (c *Coordinator) HandleEntry(vin []*wire.TxIn, vout []*wire.TxOut, collateral *wire.MsgTx, participant string, fetch PrevOutFetcher, accept MempoolAccepter) (PoolStatusUpdate, PoolMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isSessionReady() {
		return StatusRejected, ErrSession
	}

	if len(vin) > EntryMaxSize || len(vout) > EntryMaxSize {
		return StatusRejected, ErrMaximum
	}
	if !c.outputsCompatibleWithSessionDenom(vout) {
		return StatusRejected, ErrExistingTx
	}

	var valueIn, valueOut int64
	for _, out := range vout {
		valueOut += out.Value
		if len(out.PkScript) != 25 {
			return StatusRejected, ErrNonStandardPubkey
		}
		if !IsNormalPaymentScript(out.PkScript) {
			return StatusRejected, ErrInvalidScript
		}
	}
	prevScripts := make([][]byte, len(vin))
	for i, in := range vin {
		prev, ok := fetch(in.PreviousOutPoint)
		if !ok {
			return StatusRejected, ErrMissingTx
		}
		valueIn += prev.Value
		prevScripts[i] = prev.PkScript
	}
	if valueIn-valueOut != 0 {
		return StatusRejected, ErrFees
	}

	candidate := assembleTx(vin, vout)
	if accept != nil && !accept(candidate) {
		return StatusRejected, ErrInvalidTx
	}

	entry := NewPoolEntry(vin, vout, collateral)
	entry.Participant = participant
	for i, scr := range prevScripts {
		entry.Inputs[i].PrevPubKey = scr
	}

	msg, ok := c.addEntry(entry, fetch, accept)
	if !ok {
		c.reset()
		return StatusRejected, msg
	}

	c.checkPool()
	return StatusAccepted, msg
}

// assembleTx builds a plain transaction from vin/vout, the shape needed
// to run a mempool-acceptance check over an ENTRY before it is recorded.
func assembleTx(vin []*wire.TxIn, vout []*wire.TxOut) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.TxIn = append(tx.TxIn, vin...)
	tx.TxOut = append(tx.TxOut, vout...)
	return tx
}

// addEntry records entryNew, rejecting null inputs, invalid collateral,
// a full session, or an input already claimed by another entry. Must be
// called with mu held.
func (c *Coordinator) addEntry(entryNew *PoolEntry, fetch PrevOutFetcher, accept MempoolAccepter) (PoolMessage, bool) {
	var zeroHash chainhash.Hash
	for _, in := range entryNew.Inputs {
		if in.PreviousOutPoint.Hash == zeroHash && in.PreviousOutPoint.Index == math.MaxUint32 {
			return ErrInvalidInput, false
		}
	}
	if !IsCollateralValid(entryNew.Collateral, fetch, accept) {
		return ErrInvalidCollateral, false
	}
	if c.entriesCount() >= MaxPoolTransactions {
		return ErrEntriesFull, false
	}
	for _, in := range entryNew.Inputs {
		for _, e := range c.entries {
			for _, existing := range e.Inputs {
				if existing.PreviousOutPoint == in.PreviousOutPoint {
					return ErrAlreadyHave, false
				}
			}
		}
	}

	c.entries = append(c.entries, entryNew)
	c.lastStep = c.now()
	return MsgEntriesAdded, true
}

// checkPool advances the session past ACCEPTING_ENTRIES/SIGNING once their
// exit conditions are met, and resets a terminal session after its grace
// period. Must be called with mu held.
func (c *Coordinator) checkPool() {
	if c.state == PoolStateAcceptingEntries && c.entriesCount() >= MaxPoolTransactions {
		c.createFinalTransaction()
		return
	}
	if c.state == PoolStateSigning && c.isSignaturesComplete() {
		c.commitFinalTransaction()
		return
	}
	if (c.state == PoolStateError || c.state == PoolStateSuccess) &&
		c.now().Sub(c.lastStep) >= ResetGraceMillis*time.Millisecond {
		c.reset()
	}
}

// createFinalTransaction merges every entry's inputs and outputs into one
// BIP69-sorted transaction and relays it to participants for signing.
// Must be called with mu held.
func (c *Coordinator) createFinalTransaction() {
	tx := wire.NewMsgTx(wire.TxVersion)
	for _, e := range c.entries {
		tx.TxOut = append(tx.TxOut, e.outputsAsWire()...)
		tx.TxIn = append(tx.TxIn, e.inputsAsWire()...)
	}
	sortInputsBIP69(tx.TxIn)
	sortOutputsBIP69(tx.TxOut)

	c.finalTx = tx
	if c.Peers != nil {
		for _, e := range c.entries {
			c.Peers.SendToPeer(e.Participant, CmdFinal, tx)
		}
	}
	c.setState(PoolStateSigning)
}

// isSignaturesComplete reports whether every input across every entry
// carries a signature. Must be called with mu held.
func (c *Coordinator) isSignaturesComplete() bool {
	for _, e := range c.entries {
		if !e.allSigned() {
			return false
		}
	}
	return true
}

// HandleSign applies a batch of signed inputs (a PPSIGNFINALTX submission)
// to the matching entries and the in-progress final transaction.
func (c *Coordinator) HandleSign(vin []*wire.TxIn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, in := range vin {
		if !c.addScriptSig(*in) {
			return false
		}
	}
	c.checkPool()
	return true
}

// addScriptSig applies a single signed input to the in-progress final
// transaction and to whichever entry owns that input, after checking that
// the scriptSig actually redeems the output it claims to. Must be called
// with mu held.
func (c *Coordinator) addScriptSig(txin wire.TxIn) bool {
	for _, e := range c.entries {
		for _, in := range e.Inputs {
			if in.SignatureScript != nil && string(in.SignatureScript) == string(txin.SignatureScript) {
				return false
			}
		}
	}

	var prevPubKey []byte
	owned := false
	for _, e := range c.entries {
		for _, in := range e.Inputs {
			if in.sameOutpoint(txin) {
				prevPubKey = in.PrevPubKey
				owned = true
			}
		}
	}
	if !owned {
		return false
	}

	if c.finalTx != nil {
		idx := -1
		for i := range c.finalTx.TxIn {
			if c.finalTx.TxIn[i].PreviousOutPoint == txin.PreviousOutPoint {
				idx = i
			}
		}
		if idx < 0 {
			return false
		}
		if !c.Config.UnitTest && !verifyScriptSig(prevPubKey, c.finalTx, idx, txin.SignatureScript) {
			return false
		}
		c.finalTx.TxIn[idx].SignatureScript = txin.SignatureScript
	}

	for _, e := range c.entries {
		if e.AddScriptSig(txin) {
			return true
		}
	}
	return false
}

// verifyScriptSig reports whether sigScript redeems prevPkScript for tx's
// input at idx, checked the way the original's IsInputScriptSigValid does:
// full script execution with BIP16 (P2SH) evaluation and strict signature
// encoding enforced. tx's signature script at idx is restored to its
// previous value before returning either way.
func verifyScriptSig(prevPkScript []byte, tx *wire.MsgTx, idx int, sigScript []byte) bool {
	if idx < 0 || idx >= len(tx.TxIn) {
		return false
	}

	original := tx.TxIn[idx].SignatureScript
	tx.TxIn[idx].SignatureScript = sigScript
	defer func() { tx.TxIn[idx].SignatureScript = original }()

	flags := txscript.ScriptBip16 | txscript.ScriptVerifyStrictEncoding
	prevOutFetcher := txscript.NewCannedPrevOutputFetcher(prevPkScript, 0)
	vm, err := txscript.NewEngine(prevPkScript, tx, idx, flags, nil, nil, 0, prevOutFetcher)
	if err != nil {
		return false
	}
	return vm.Execute() == nil
}

// commitFinalTransaction broadcasts the fully-signed joint transaction,
// records a signed BroadcastTx pinning it, randomly charges some
// collaterals to cover miner fees, and resets the session. Must be called
// with mu held.
func (c *Coordinator) commitFinalTransaction() {
	if c.finalTx == nil {
		c.reset()
		return
	}

	if c.Chain != nil && !c.Chain.AcceptToMemoryPool(c.finalTx) {
		if c.Peers != nil {
			for _, e := range c.entries {
				c.Peers.SendToPeer(e.Participant, CmdComplete, ErrInvalidTx)
			}
		}
		c.reset()
		c.state = PoolStateError
		return
	}

	hash := c.finalTx.TxHash()
	if _, exists := c.Pptx.Get(hash); !exists {
		record := &BroadcastTx{Tx: c.finalTx, SigTime: c.now().Unix(), ConfirmedHeight: -1}
		record.Sign(c.PrivKey)
		c.Pptx.Add(record)
		if c.Peers != nil {
			c.Peers.RelayBroadcastTx(record)
		}
	}

	if c.Chain != nil {
		c.Chain.PublishTransaction(c.finalTx)
	}

	if c.Peers != nil {
		for _, e := range c.entries {
			c.Peers.SendToPeer(e.Participant, CmdComplete, MsgSuccess)
		}
	}

	c.chargeRandomFees(accepterFromChain(c.Chain))
	c.reset()
}

// accepterFromChain adapts a ChainClient to the MempoolAccepter shape used
// by chargeFees/chargeRandomFees, or returns nil if chain is nil.
func accepterFromChain(chain ChainClient) MempoolAccepter {
	if chain == nil {
		return nil
	}
	return chain.AcceptToMemoryPool
}

// chargeFees penalizes one randomly chosen uncooperative participant: a
// client that promised an entry but never submitted one, or that never
// signed. Mixing's lack of transaction fees means non-cooperation would
// otherwise be free, so misbehaving collateral is occasionally relayed as
// a real transaction. Only ever called from CheckTimeout.
func (c *Coordinator) chargeFees(accept MempoolAccepter) {
	if rand.Intn(100) > 33 {
		return
	}

	var offenders []*wire.MsgTx
	switch c.state {
	case PoolStateAcceptingEntries:
		for _, collateral := range c.collaterals {
			found := false
			collateralHash := collateral.TxHash()
			for _, e := range c.entries {
				if e.Collateral.TxHash() == collateralHash {
					found = true
					break
				}
			}
			if !found {
				offenders = append(offenders, collateral)
			}
		}
	case PoolStateSigning:
		for _, e := range c.entries {
			for _, in := range e.Inputs {
				if !in.HasSig {
					offenders = append(offenders, e.Collateral)
				}
			}
		}
	}

	if len(offenders) == 0 {
		return
	}
	if len(offenders) >= MaxPoolTransactions-1 && rand.Intn(100) > 33 {
		return
	}
	if len(offenders) >= MaxPoolTransactions {
		return
	}

	chosen := offenders[rand.Intn(len(offenders))]
	if accept != nil && accept(chosen) && c.Chain != nil {
		c.Chain.PublishTransaction(chosen)
	}
}

// chargeRandomFees relays roughly one in ten session collaterals as real
// transactions after a successful mix, spreading the cost of miner fees
// across participants rather than charging none at all.
func (c *Coordinator) chargeRandomFees(accept MempoolAccepter) {
	for _, collateral := range c.collaterals {
		if rand.Intn(100) > 10 {
			continue
		}
		if accept != nil && accept(collateral) && c.Chain != nil {
			c.Chain.PublishTransaction(collateral)
		}
	}
}

// CheckTimeout resets a stuck session back to ERROR once it has sat past
// its timeout budget, charging fees against uncooperative participants
// first.
func (c *Coordinator) CheckTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()

	timeout := QueueTimeoutSeconds
	if c.state == PoolStateSigning {
		timeout = SigningTimeoutSeconds
	}

	if c.state != PoolStateIdle && c.now().Sub(c.lastStep) >= time.Duration(timeout)*time.Second {
		c.chargeFees(accepterFromChain(c.Chain))
		c.reset()
		c.state = PoolStateError
	}
}

// CheckForCompleteQueue promotes a QUEUE session to ACCEPTING_ENTRIES once
// enough collaterals have arrived, announcing readiness with a signed
// fReady=true queue advertisement.
func (c *Coordinator) CheckForCompleteQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != PoolStateQueue || !c.isSessionReady() {
		return
	}
	c.setState(PoolStateAcceptingEntries)

	ad := &QueueAdvertisement{Vin: c.Self, Denom: c.sessionDenom, Time: c.now().Unix(), Ready: true}
	ad.Sign(c.PrivKey)
	if c.Peers != nil {
		c.Peers.RelayQueue(ad)
	}
}
