// Copyright (c) 2025 The Pura Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package privatepay

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// Client runs the wallet side of a single PrivatePay session: it picks a
// coordinator, submits an ACCEPT, waits in queue, sends its ENTRY, signs
// the final transaction, and reports the outcome back to the wallet.
type Client struct {
	mu sync.Mutex

	state        PoolState
	sessionID    int
	entriesCount int
	lastEntryOK  bool
	lastStep     time.Time
	lastMessage  string
	myCollateral *wire.MsgTx
	myEntries    []*PoolEntry
	finalTx      *wire.MsgTx
	lockedCoins  []wire.OutPoint
	coordinator  string // address of the masternode currently mixing with us
	used         map[string]struct{}
	usedOrder    []string // insertion order of used, oldest first

	Wallet   Wallet
	Peers    PeerNotifier
	Registry Registry
	Queues   *QueueStore
	Pptx     *BroadcastTxStore
	Chain    ChainClient
	Config   Config
	Clock    Clock
}

// NewClient returns an idle Client wired to the given collaborators. It
// owns its own QueueStore and PPTX map, populated by inbound PPQUEUE and
// BROADCAST gossip respectively, since a client's view of the network is
// independent of any coordinator the same process might also be running.
func NewClient(wallet Wallet, peers PeerNotifier, cfg Config) *Client {
	return &Client{
		Wallet:   wallet,
		Peers:    peers,
		Queues:   NewQueueStore(),
		Pptx:     NewBroadcastTxStore(),
		Config:   cfg,
		Clock:    realClock{},
		lastStep: time.Now(),
	}
}

func (c *Client) now() time.Time {
	if c.Clock != nil {
		return c.Clock.Now()
	}
	return time.Now()
}

// resetPool clears session state, unlocks any coins we reserved, and
// forgets the collateral/coordinator we were using. Must be called with
// mu held.
func (c *Client) resetPool() {
	c.unlockCoins()
	c.myCollateral = nil
	c.coordinator = ""
	c.setNull()
}

// setNull clears only the session fields, leaving collateral/coordinator
// selection untouched; used when a new session with the same coordinator
// may follow immediately. Must be called with mu held.
func (c *Client) setNull() {
	c.state = PoolStateIdle
	c.sessionID = 0
	c.entriesCount = 0
	c.lastEntryOK = false
	c.myEntries = nil
	c.finalTx = nil
	c.lastStep = c.now()
}

// unlockCoins releases every outpoint this client reserved for the
// in-flight session. Must be called with mu held.
func (c *Client) unlockCoins() {
	if c.Wallet != nil {
		for _, op := range c.lockedCoins {
			c.Wallet.UnlockCoin(op)
		}
	}
	c.lockedCoins = nil
}

func (c *Client) setState(s PoolState) {
	c.state = s
}

// State returns the client's current session state.
func (c *Client) State() PoolState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status renders a short human-readable description of the session's
// progress, the client-side analogue of a coordinator's STATUS broadcast.
func (c *Client) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case PoolStateIdle:
		return "PrivatePay is idle."
	case PoolStateQueue:
		return "Submitted to masternode, waiting in queue."
	case PoolStateAcceptingEntries:
		if c.entriesCount == 0 {
			return "Waiting for entries."
		}
		if c.lastEntryOK {
			return "Your transaction was accepted into the pool."
		}
		return fmt.Sprintf("Submitted to masternode, waiting for more entries (%d/%d).", c.entriesCount, MaxPoolTransactions)
	case PoolStateSigning:
		return "Found enough users, signing."
	case PoolStateError:
		return "PrivatePay request incomplete: " + c.lastMessage
	case PoolStateSuccess:
		return "PrivatePay request complete: " + c.lastMessage
	default:
		return "Unknown state."
	}
}

// CheckPool resets a terminal session back to IDLE once it has lingered
// past its grace period.
func (c *Client) CheckPool() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkPool()
}

func (c *Client) checkPool() {
	if (c.state == PoolStateError || c.state == PoolStateSuccess) &&
		c.now().Sub(c.lastStep) >= ResetGraceMillis*time.Millisecond {
		c.resetPool()
	}
}

// CheckTimeout resets a session that has sat too long without progress.
// The client is given an extra ClientLagMillis over the coordinator's own
// timeout budget, so the coordinator always gets first refusal on
// declaring a session dead.
func (c *Client) CheckTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == PoolStateError || c.state == PoolStateSuccess {
		c.checkPool()
	}

	timeout := QueueTimeoutSeconds
	if c.state == PoolStateSigning {
		timeout = SigningTimeoutSeconds
	}
	budget := time.Duration(timeout)*time.Second + ClientLagMillis*time.Millisecond

	if c.state != PoolStateIdle && c.now().Sub(c.lastStep) >= budget {
		c.resetPool()
		c.setState(PoolStateError)
		c.lastMessage = "Session timed out."
	}
}

// JoinQueue records that a queue advertisement has been picked and a
// session handshake is starting against coordinator addr, using
// collateral as the anti-DoS proof.
func (c *Client) JoinQueue(addr string, collateral *wire.MsgTx) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.coordinator = addr
	c.myCollateral = collateral
}

// CheckPoolStateUpdate applies a STATUS message received from the
// coordinator. It refuses to update a terminal or idle session, and only
// accepts the two forward transitions a well-behaved coordinator can
// legally announce: assigning a session ID while entering QUEUE, and
// bumping the entries counter while in ACCEPTING_ENTRIES.
func (c *Client) CheckPoolStateUpdate(newState PoolState, entries int, status PoolStatusUpdate, msg PoolMessage, sessionID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == PoolStateIdle || c.state == PoolStateError || c.state == PoolStateSuccess {
		return false
	}

	if status == StatusRejected {
		c.resetPool()
		c.setState(PoolStateError)
		c.lastMessage = msg.String()
		return true
	}

	if status == StatusAccepted && c.state == newState {
		switch {
		case newState == PoolStateQueue && c.sessionID == 0 && sessionID != 0:
			c.sessionID = sessionID
			c.lastStep = c.now()
			return true
		case newState == PoolStateAcceptingEntries && c.entriesCount != entries:
			c.entriesCount = entries
			c.lastStep = c.now()
			c.lastEntryOK = true
			return true
		}
	}

	return false
}

// SendDenominate submits our collateral-backed entry to the coordinator
// we are currently mixing with. accept backs the pre-submission
// mempool-acceptance check the original performs before ever contacting
// the network.
func (c *Client) SendDenominate(vin []*wire.TxIn, vout []*wire.TxOut, accept MempoolAccepter) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.myCollateral == nil {
		return false
	}

	for _, in := range c.myCollateral.TxIn {
		c.lockedCoins = append(c.lockedCoins, in.PreviousOutPoint)
	}
	for _, in := range vin {
		c.lockedCoins = append(c.lockedCoins, in.PreviousOutPoint)
	}

	if c.sessionID == 0 {
		c.resetPool()
		return false
	}

	c.setState(PoolStateAcceptingEntries)
	c.lastMessage = ""

	candidate := assembleTx(vin, vout)
	if accept != nil && !accept(candidate) {
		c.resetPool()
		return false
	}

	entry := NewPoolEntry(vin, vout, c.myCollateral)
	c.myEntries = append(c.myEntries, entry)
	if c.Peers != nil {
		c.Peers.SendToPeer(c.coordinator, CmdEntry, entry)
	}
	c.lastStep = c.now()
	return true
}

// SignFinalTransaction checks that the coordinator's proposed final
// transaction still contains every input and output we submitted, signs
// our own inputs, and pushes the signatures back. A transaction missing
// our entries is refused rather than signed, even at the cost of being
// charged collateral for it: signing a transaction that doesn't match
// what we asked for would leak which inputs are ours.
func (c *Client) SignFinalTransaction(final *wire.MsgTx, sign func(tx *wire.MsgTx, index int, prevOut *wire.TxOut) ([]byte, error)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.finalTx = final

	var sigs []*wire.TxIn
	for _, entry := range c.myEntries {
		for _, dsin := range entry.Inputs {
			myIndex := -1
			for i, in := range final.TxIn {
				if in.PreviousOutPoint == dsin.PreviousOutPoint && in.Sequence == dsin.Sequence {
					myIndex = i
				}
			}
			if myIndex < 0 {
				c.resetPool()
				return false
			}

			found := 0
			var value1, value2 int64
			for _, out := range final.TxOut {
				for _, want := range entry.Outputs {
					if out.Value == want.Value && string(out.PkScript) == string(want.PkScript) {
						found++
						value1 += out.Value
					}
				}
			}
			for _, want := range entry.Outputs {
				value2 += want.Value
			}
			if found < len(entry.Outputs) || value1 != value2 {
				c.resetPool()
				return false
			}

			prevOut := &wire.TxOut{Value: 0, PkScript: dsin.PrevPubKey}
			sigScript, err := sign(final, myIndex, prevOut)
			if err != nil {
				continue
			}
			final.TxIn[myIndex].SignatureScript = sigScript
			sigs = append(sigs, final.TxIn[myIndex])
		}
	}

	if len(sigs) == 0 {
		c.resetPool()
		return false
	}

	if c.Peers != nil {
		c.Peers.SendToPeer(c.coordinator, CmdSign, sigs)
	}
	c.setState(PoolStateSigning)
	c.lastStep = c.now()
	return true
}

// StartMixingSession looks for a coordinator to mix with: first by trying
// to slot into an already-advertised queue matching needAmount, falling
// back to picking a random masternode and starting a fresh queue. It is a
// no-op (returns false) unless the client is currently idle with no
// session ID assigned and already holds a collateral transaction.
func (c *Client) StartMixingSession(needAmount btcutil.Amount, amounts []btcutil.Amount) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != PoolStateIdle || c.sessionID != 0 {
		return false
	}
	if c.myCollateral == nil {
		return false
	}

	if c.joinExistingQueue(needAmount) {
		return true
	}
	return c.startNewQueue(amounts)
}

// joinExistingQueue scans advertised queues for one whose denomination we
// have matching coins for, resolves its coordinator's network address, and
// sends it a PPACCEPT. Must be called with mu held.
func (c *Client) joinExistingQueue(needAmount btcutil.Amount) bool {
	if c.Queues == nil || c.Registry == nil || c.Peers == nil || c.Wallet == nil {
		return false
	}

	now := c.now()
	for _, ad := range c.Queues.AllReady(now) {
		bits, ok := MaskToBits(ad.Denom)
		if !ok {
			continue
		}

		addr, pubKey, ok := c.Registry.AddressForVin(ad.Vin)
		if !ok || !c.Registry.IsMasternode(addr, pubKey) {
			continue
		}
		if version, ok := c.Registry.ProtocolVersion(addr); !ok || version < MinPeerProtoVersion {
			continue
		}
		if _, tried := c.used[addr]; tried {
			continue
		}

		target := StandardDenominations[bits[0]]
		if needAmount > 0 && needAmount < target {
			target = needAmount
		}
		if _, _, err := c.Wallet.SelectCoins(target, true); err != nil {
			continue
		}

		// The coordinator's own rate limit is enforced on its side when
		// the advertisement is first relayed (QueueStore.Add); a queue
		// that made it into c.Queues has already passed that check, so
		// no further rate-limit check is needed here.
		c.recordCoordinatorUsed(addr)
		c.coordinator = addr
		c.sessionDenomPick(ad.Denom)

		c.Peers.SendToPeer(addr, CmdAccept, c.myCollateral)
		c.setState(PoolStateQueue)
		c.lastStep = c.now()
		return true
	}
	return false
}

// startNewQueue picks a masternode we haven't tried yet, settles on a
// single random denomination drawn from amounts, and advertises a fresh
// queue by sending it a PPACCEPT. Must be called with mu held.
func (c *Client) startNewQueue(amounts []btcutil.Amount) bool {
	if c.Registry == nil || c.Peers == nil {
		return false
	}

	const maxTries = 10
	for i := 0; i < maxTries; i++ {
		exclude := c.used
		addr, pubKey, ok := c.Registry.RandomMasternode(exclude)
		if !ok {
			return false
		}
		c.recordCoordinatorUsed(addr)
		if !c.Registry.IsMasternode(addr, pubKey) {
			continue
		}
		if c.Registry.RateLimited(addr) {
			continue
		}

		var denom DenomMask
		for denom == 0 {
			denom = RandomSingleDenomMaskFromAmounts(amounts)
			if len(amounts) == 0 {
				return false
			}
		}

		c.coordinator = addr
		c.sessionDenomPick(denom)

		c.Peers.SendToPeer(addr, CmdAccept, c.myCollateral)
		c.setState(PoolStateQueue)
		c.lastStep = c.now()
		return true
	}
	return false
}

// recordCoordinatorUsed adds addr to the coordinator-used history if it
// isn't already present, tracking insertion order so trimCoordinatorsUsed
// can drop the oldest entries first. Must be called with mu held.
func (c *Client) recordCoordinatorUsed(addr string) {
	if c.used == nil {
		c.used = make(map[string]struct{})
	}
	if _, ok := c.used[addr]; ok {
		return
	}
	c.used[addr] = struct{}{}
	c.usedOrder = append(c.usedOrder, addr)
}

// trimCoordinatorsUsed drops the oldest ~30% of the coordinator-used
// history once it exceeds 90% of the enabled fleet size. Left untrimmed, a
// client that has been mixing for a while would eventually exclude every
// known coordinator and be unable to start a new queue. Must be called
// with mu held.
func (c *Client) trimCoordinatorsUsed() {
	if c.Registry == nil {
		return
	}

	thresholdHigh := int(float64(c.Registry.Count()) * 0.9)
	if len(c.usedOrder) <= thresholdHigh {
		return
	}
	thresholdLow := int(float64(thresholdHigh) * 0.7)

	drop := len(c.usedOrder) - thresholdLow
	for _, addr := range c.usedOrder[:drop] {
		delete(c.used, addr)
	}
	c.usedOrder = append([]string(nil), c.usedOrder[drop:]...)
}

// DoAutomaticDenominating runs one pass of the background mixing loop: it
// checks whether mixing is currently allowed at all, makes sure the wallet
// has denominated inputs and a collateral-sized output to work with, and
// then either joins an advertised queue or starts a fresh one. It is meant
// to be called periodically (see Manager), not on every tick.
func (c *Client) DoAutomaticDenominating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Config.LiteMode || c.Config.MasternodeMode {
		return false
	}
	if c.Wallet == nil || c.Registry == nil || c.Peers == nil {
		return false
	}
	if c.Wallet.Locked() {
		return false
	}
	if c.state != PoolStateIdle {
		return false
	}
	if c.Chain != nil && !c.Chain.IsCurrent() {
		return false
	}
	if c.Wallet.NeedsBackup() {
		return false
	}
	if c.Registry.Count() == 0 {
		return false
	}

	minValue := SmallestDenomination()
	if !c.Wallet.HasCollateralInputs() {
		minValue += MaxCollateralAmount
	}

	bal := c.Wallet.MixingBalances(minValue)
	if bal.NeedsAnonymized < minValue {
		return false
	}

	// Step 2: split non-denominated funds into standard denominations
	// before anything else, if the wallet hasn't reached its target
	// denominated balance yet.
	denominatedSoFar := bal.DenominatedConfirmed + bal.DenominatedUnconfirmed
	if bal.AnonymizableNonDenom >= SmallestDenomination()+CollateralAmount &&
		denominatedSoFar < c.Config.AnonymizeTarget {
		_, err := CreateDenominatedInputs(c.Wallet, bal.AnonymizableNonDenom)
		return err == nil
	}

	// Step 3: carve out a collateral-sized output if none exists yet.
	if !c.Wallet.HasCollateralInputs() {
		tx, err := MakeCollateralAmounts(c.Wallet)
		if err != nil {
			return false
		}
		c.myCollateral = tx
		return true
	}

	if c.sessionID != 0 {
		return false
	}

	c.unlockCoins()
	c.setNull()

	if !c.Config.MultiSession && bal.DenominatedUnconfirmed > 0 {
		return false
	}

	// Step 4: make sure we have a usable collateral transaction.
	if !c.collateralStillValid() {
		tx, err := MakeCollateralAmounts(c.Wallet)
		if err != nil {
			return false
		}
		c.myCollateral = tx
	}

	// Step 5: trim the coordinator-used history before picking a target.
	c.trimCoordinatorsUsed()

	// Step 6: join with probability 2/3 (always for a liquidity
	// provider, which never starts its own queue), otherwise start one.
	useQueue := c.Config.LiquidityProvider > 0 || rand.Intn(100) > 33
	if useQueue && c.joinExistingQueue(bal.NeedsAnonymized) {
		return true
	}
	if c.Config.LiquidityProvider > 0 {
		return false
	}

	vin, prevOuts, err := c.Wallet.SelectCoins(minValue, true)
	if err != nil || len(vin) == 0 {
		return false
	}
	amounts := make([]btcutil.Amount, len(prevOuts))
	for i, out := range prevOuts {
		amounts[i] = btcutil.Amount(out.Value)
	}

	return c.startNewQueue(amounts)
}

// collateralStillValid reports whether myCollateral is set and, when a
// chain collaborator is wired, still resolves to a valid collateral
// transaction. With no chain collaborator wired it trusts a previously
// built collateral rather than blocking automatic mixing entirely. Must be
// called with mu held.
func (c *Client) collateralStillValid() bool {
	if c.myCollateral == nil {
		return false
	}
	if c.Chain == nil {
		return true
	}
	return IsCollateralValid(c.myCollateral, c.Chain.FetchPrevOutput, c.Chain.AcceptToMemoryPool)
}

// sessionDenomPick records which denomination we proposed to the
// coordinator we just contacted; kept distinct from CheckPoolStateUpdate's
// bookkeeping so a rejected ACCEPT doesn't leave a stale denom choice
// behind.
func (c *Client) sessionDenomPick(denom DenomMask) {
	c.lastMessage = DenominationsToString(denom)
}

// CompletedTransaction records the outcome of a finished mixing attempt,
// clears the session, and leaves it in SUCCESS or ERROR until CheckPool
// returns it to IDLE after the grace period.
func (c *Client) CompletedTransaction(msg PoolMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastMessage = msg.String()
	c.resetPool()
	if msg == MsgSuccess {
		c.setState(PoolStateSuccess)
	} else {
		c.setState(PoolStateError)
	}
}
