// Copyright (c) 2025 The Pura Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package privatepay

import (
	"fmt"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

type fakeWallet struct {
	locked map[wire.OutPoint]bool

	isLocked      bool
	needsBackup   bool
	hasCollateral bool
	balances      WalletBalances

	selectErr  error
	selectVin  []*wire.TxIn
	selectVout []*wire.TxOut
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{locked: make(map[wire.OutPoint]bool), hasCollateral: true}
}

func (w *fakeWallet) SelectCoins(btcutil.Amount, bool) ([]*wire.TxIn, []*wire.TxOut, error) {
	return w.selectVin, w.selectVout, w.selectErr
}
func (w *fakeWallet) LockCoin(op wire.OutPoint)        { w.locked[op] = true }
func (w *fakeWallet) UnlockCoin(op wire.OutPoint)      { delete(w.locked, op) }
func (w *fakeWallet) IsLockedCoin(op wire.OutPoint) bool { return w.locked[op] }
func (w *fakeWallet) NewChangeAddress() ([]byte, error) { return []byte{0x00}, nil }
func (w *fakeWallet) SignInput(*wire.MsgTx, int, *wire.TxOut) ([]byte, error) {
	return []byte{0x01}, nil
}
func (w *fakeWallet) CollateralKey() (*btcec.PrivateKey, *btcec.PublicKey, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, nil, err
	}
	return priv, priv.PubKey(), nil
}
func (w *fakeWallet) Locked() bool             { return w.isLocked }
func (w *fakeWallet) NeedsBackup() bool        { return w.needsBackup }
func (w *fakeWallet) HasCollateralInputs() bool { return w.hasCollateral }
func (w *fakeWallet) MixingBalances(btcutil.Amount) WalletBalances { return w.balances }

type fakeRegistry struct {
	count      int
	versions   map[string]int
	limited    map[string]bool
	masternode map[string]bool
	random     func(exclude map[string]struct{}) (string, *btcec.PublicKey, bool)
	addrForVin map[wire.OutPoint]string
	pubKey     *btcec.PublicKey

	selfAddr   string
	selfPubKey *btcec.PublicKey
	selfOK     bool
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		versions:   make(map[string]int),
		limited:    make(map[string]bool),
		masternode: make(map[string]bool),
		addrForVin: make(map[wire.OutPoint]string),
		selfOK:     true,
	}
}

func (r *fakeRegistry) IsMasternode(addr string, _ *btcec.PublicKey) bool {
	if r.masternode == nil {
		return true
	}
	v, ok := r.masternode[addr]
	if !ok {
		return true
	}
	return v
}
func (r *fakeRegistry) RandomMasternode(exclude map[string]struct{}) (string, *btcec.PublicKey, bool) {
	if r.random != nil {
		return r.random(exclude)
	}
	return "", nil, false
}
func (r *fakeRegistry) AddressForVin(op wire.OutPoint) (string, *btcec.PublicKey, bool) {
	addr, ok := r.addrForVin[op]
	return addr, r.pubKey, ok
}
func (r *fakeRegistry) Count() int { return r.count }
func (r *fakeRegistry) ProtocolVersion(addr string) (int, bool) {
	v, ok := r.versions[addr]
	return v, ok
}
func (r *fakeRegistry) RateLimited(addr string) bool { return r.limited[addr] }
func (r *fakeRegistry) Self() (string, *btcec.PublicKey, bool) {
	return r.selfAddr, r.selfPubKey, r.selfOK
}

func TestClientStatusReflectsState(t *testing.T) {
	t.Parallel()

	c := NewClient(nil, nil, Config{})
	require.Equal(t, "PrivatePay is idle.", c.Status())

	c.mu.Lock()
	c.setState(PoolStateQueue)
	c.mu.Unlock()
	require.Equal(t, "Submitted to masternode, waiting in queue.", c.Status())
}

func TestClientCheckPoolStateUpdateRejection(t *testing.T) {
	t.Parallel()

	c := NewClient(nil, nil, Config{})
	c.mu.Lock()
	c.setState(PoolStateQueue)
	c.sessionID = 7
	c.mu.Unlock()

	ok := c.CheckPoolStateUpdate(PoolStateQueue, 0, StatusRejected, ErrDenom, 7)
	require.True(t, ok)
	require.Equal(t, PoolStateError, c.State())
}

func TestClientCheckPoolStateUpdateAcceptsSessionID(t *testing.T) {
	t.Parallel()

	c := NewClient(nil, nil, Config{})
	c.mu.Lock()
	c.setState(PoolStateQueue)
	c.mu.Unlock()

	ok := c.CheckPoolStateUpdate(PoolStateQueue, 0, StatusAccepted, MsgNoErr, 42)
	require.True(t, ok)

	c.mu.Lock()
	got := c.sessionID
	c.mu.Unlock()
	require.Equal(t, 42, got)
}

func TestClientCheckPoolStateUpdateIgnoredWhenIdle(t *testing.T) {
	t.Parallel()

	c := NewClient(nil, nil, Config{})
	ok := c.CheckPoolStateUpdate(PoolStateQueue, 0, StatusAccepted, MsgNoErr, 1)
	require.False(t, ok)
}

func TestClientSendDenominateRequiresCollateral(t *testing.T) {
	t.Parallel()

	c := NewClient(nil, nil, Config{})
	ok := c.SendDenominate(nil, nil, nil)
	require.False(t, ok)
}

func TestClientSignFinalTransactionRefusesMismatch(t *testing.T) {
	t.Parallel()

	c := NewClient(nil, nil, Config{})

	op := wire.OutPoint{Index: 1}
	c.myEntries = []*PoolEntry{NewPoolEntry(
		[]*wire.TxIn{wire.NewTxIn(&op, nil, nil)},
		[]*wire.TxOut{wire.NewTxOut(1000, []byte{0x00})},
		nil,
	)}

	final := wire.NewMsgTx(wire.TxVersion)
	final.AddTxIn(wire.NewTxIn(&op, nil, nil))
	// Final tx output doesn't match what we submitted.
	final.AddTxOut(wire.NewTxOut(999, []byte{0x00}))

	sign := func(*wire.MsgTx, int, *wire.TxOut) ([]byte, error) { return []byte{0x01}, nil }
	ok := c.SignFinalTransaction(final, sign)
	require.False(t, ok)
}

func TestClientSignFinalTransactionSigns(t *testing.T) {
	t.Parallel()

	c := NewClient(nil, nil, Config{})

	op := wire.OutPoint{Index: 1}
	c.myEntries = []*PoolEntry{NewPoolEntry(
		[]*wire.TxIn{wire.NewTxIn(&op, nil, nil)},
		[]*wire.TxOut{wire.NewTxOut(1000, []byte{0x00})},
		nil,
	)}

	final := wire.NewMsgTx(wire.TxVersion)
	final.AddTxIn(wire.NewTxIn(&op, nil, nil))
	final.AddTxOut(wire.NewTxOut(1000, []byte{0x00}))

	sign := func(*wire.MsgTx, int, *wire.TxOut) ([]byte, error) { return []byte{0x01}, nil }
	ok := c.SignFinalTransaction(final, sign)
	require.True(t, ok)
	require.Equal(t, PoolStateSigning, c.State())
	require.Equal(t, []byte{0x01}, final.TxIn[0].SignatureScript)
}

func TestClientCompletedTransaction(t *testing.T) {
	t.Parallel()

	c := NewClient(nil, nil, Config{})
	c.CompletedTransaction(MsgSuccess)
	require.Equal(t, PoolStateSuccess, c.State())

	c2 := NewClient(nil, nil, Config{})
	c2.CompletedTransaction(ErrSession)
	require.Equal(t, PoolStateError, c2.State())
}

func TestClientCheckPoolResetsAfterGrace(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Now()}
	c := NewClient(nil, nil, Config{})
	c.Clock = clock
	c.CompletedTransaction(MsgSuccess)
	require.Equal(t, PoolStateSuccess, c.State())

	clock.now = clock.now.Add((ResetGraceMillis - 1) * time.Millisecond)
	c.CheckPool()
	require.Equal(t, PoolStateSuccess, c.State())

	clock.now = clock.now.Add(2 * time.Millisecond)
	c.CheckPool()
	require.Equal(t, PoolStateIdle, c.State())
}

func TestClientJoinExistingQueueRejectsOldProtocolVersion(t *testing.T) {
	t.Parallel()

	w := newFakeWallet()
	w.selectVin = []*wire.TxIn{{}}
	peers := &fakePeers{}
	reg := newFakeRegistry()

	op := wire.OutPoint{Index: 1}
	reg.addrForVin[op] = "mn1"
	reg.versions["mn1"] = MinPeerProtoVersion - 1

	c := NewClient(w, peers, Config{})
	c.Registry = reg

	ad := &QueueAdvertisement{Vin: op, Denom: DenomMask(1), Ready: true, Time: c.now().Unix()}
	c.Queues.Add(ad, 10)

	c.mu.Lock()
	ok := c.joinExistingQueue(0)
	c.mu.Unlock()

	require.False(t, ok)
	require.Empty(t, peers.sent)
}

func TestClientJoinExistingQueueAcceptsCurrentProtocolVersion(t *testing.T) {
	t.Parallel()

	w := newFakeWallet()
	w.selectVin = []*wire.TxIn{{}}
	peers := &fakePeers{}
	reg := newFakeRegistry()

	op := wire.OutPoint{Index: 1}
	reg.addrForVin[op] = "mn1"
	reg.versions["mn1"] = MinPeerProtoVersion

	c := NewClient(w, peers, Config{})
	c.Registry = reg

	ad := &QueueAdvertisement{Vin: op, Denom: DenomMask(1), Ready: true, Time: c.now().Unix()}
	c.Queues.Add(ad, 10)

	c.mu.Lock()
	ok := c.joinExistingQueue(0)
	c.mu.Unlock()

	require.True(t, ok)
	require.Equal(t, []string{"mn1:" + CmdAccept}, peers.sent)
}

func TestClientStartNewQueueRejectsRateLimitedCandidate(t *testing.T) {
	t.Parallel()

	peers := &fakePeers{}
	reg := newFakeRegistry()
	reg.limited["mn1"] = true
	tries := 0
	reg.random = func(map[string]struct{}) (string, *btcec.PublicKey, bool) {
		tries++
		return "mn1", nil, true
	}

	c := NewClient(nil, peers, Config{})
	c.Registry = reg

	c.mu.Lock()
	ok := c.startNewQueue([]btcutil.Amount{StandardDenominations[0]})
	c.mu.Unlock()

	require.False(t, ok)
	require.Empty(t, peers.sent)
	require.Equal(t, 10, tries)
}

func TestClientStartNewQueueAcceptsUnlimitedCandidate(t *testing.T) {
	t.Parallel()

	peers := &fakePeers{}
	reg := newFakeRegistry()
	reg.random = func(map[string]struct{}) (string, *btcec.PublicKey, bool) {
		return "mn1", nil, true
	}

	c := NewClient(nil, peers, Config{})
	c.Registry = reg

	c.mu.Lock()
	ok := c.startNewQueue([]btcutil.Amount{StandardDenominations[0]})
	c.mu.Unlock()

	require.True(t, ok)
	require.Equal(t, []string{"mn1:" + CmdAccept}, peers.sent)
}

func TestClientTrimCoordinatorsUsedDropsOldestThirty(t *testing.T) {
	t.Parallel()

	c := NewClient(nil, nil, Config{})
	reg := newFakeRegistry()
	reg.count = 10 // thresholdHigh = 9, thresholdLow = 6
	c.Registry = reg

	for i := 0; i < 10; i++ {
		c.recordCoordinatorUsed(fmt.Sprintf("mn%d", i))
	}
	c.trimCoordinatorsUsed()

	require.Len(t, c.usedOrder, 6)
	require.Equal(t, []string{"mn4", "mn5", "mn6", "mn7", "mn8", "mn9"}, c.usedOrder)
	_, stillUsed := c.used["mn0"]
	require.False(t, stillUsed)
	_, stillUsed = c.used["mn9"]
	require.True(t, stillUsed)
}

func TestClientDoAutomaticDenominatingSkipsWhenLocked(t *testing.T) {
	t.Parallel()

	w := newFakeWallet()
	w.isLocked = true
	reg := newFakeRegistry()
	reg.count = 1

	c := NewClient(w, &fakePeers{}, Config{})
	c.Registry = reg

	require.False(t, c.DoAutomaticDenominating())
}

func TestClientDoAutomaticDenominatingSkipsBelowMinValue(t *testing.T) {
	t.Parallel()

	w := newFakeWallet()
	w.balances = WalletBalances{NeedsAnonymized: 0}
	reg := newFakeRegistry()
	reg.count = 1

	c := NewClient(w, &fakePeers{}, Config{})
	c.Registry = reg

	require.False(t, c.DoAutomaticDenominating())
}

func TestClientDoAutomaticDenominatingBuildsCollateralFirst(t *testing.T) {
	t.Parallel()

	w := newFakeWallet()
	w.hasCollateral = false
	w.balances = WalletBalances{NeedsAnonymized: SmallestDenomination() + MaxCollateralAmount}
	w.selectVin = []*wire.TxIn{{}}
	reg := newFakeRegistry()
	reg.count = 1

	c := NewClient(w, &fakePeers{}, Config{})
	c.Registry = reg

	require.True(t, c.DoAutomaticDenominating())
	require.NotNil(t, c.myCollateral)
}

func TestClientUnlockCoinsOnReset(t *testing.T) {
	t.Parallel()

	w := newFakeWallet()
	c := NewClient(w, nil, Config{})
	op := wire.OutPoint{Index: 1}
	w.LockCoin(op)

	c.mu.Lock()
	c.lockedCoins = []wire.OutPoint{op}
	c.resetPool()
	c.mu.Unlock()

	require.False(t, w.IsLockedCoin(op))
}
