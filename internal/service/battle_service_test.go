package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memewars/internal/battle"
	"memewars/internal/config"
	"memewars/internal/db"
	"memewars/internal/models"
	"memewars/internal/oracle"
	"memewars/internal/receipt"
	"memewars/internal/repository"
	gormrepository "memewars/internal/repository/gorm"
	"memewars/internal/settlement"
	"memewars/internal/yield"
)

const (
	feedA = "feed-a"
	feedB = "feed-b"
	ops   = "ops"

	price1000 = int64(100_000_000_000)
	price1002 = int64(100_200_000_000)
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fakeYield struct {
	mu       sync.Mutex
	fail     bool
	yieldPer uint64
	calls    int
}

func (f *fakeYield) Kind() yield.Kind { return yield.KindMarginfi }

func (f *fakeYield) Delegate(_ context.Context, req yield.DelegateRequest) (yield.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return yield.Receipt{}, errors.New("backend unreachable")
	}
	return yield.Receipt{Ref: "fake:" + req.Key, EntryRate: decimal.NewFromInt(1)}, nil
}

func (f *fakeYield) Redeem(_ context.Context, pos yield.Position, _ time.Time) (yield.Redemption, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return yield.Redemption{Principal: pos.Amount, Yield: f.yieldPer}, nil
}

func (f *fakeYield) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

type recordingNotifier struct {
	settled []uint64
}

func (n *recordingNotifier) BattleSettled(_ context.Context, b models.Battle, _ settlement.Result) error {
	n.settled = append(n.settled, b.ID)
	return nil
}

type testEnv struct {
	svc   *BattleService
	store *gormrepository.Store
	feed  *oracle.StaticFeed
	clock *testClock
	yield *fakeYield
}

func newTestEnv(t *testing.T, forwardBps uint64) *testEnv {
	t.Helper()
	database, err := db.Open(config.DBConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(database) })
	require.NoError(t, db.AutoMigrate(database))

	store := gormrepository.New(database.Gorm)
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	feed := oracle.NewStaticFeed(true)
	feed.Now = clock.Now
	feed.Set(oracle.Observation{FeedID: feedA, Price: price1000, Exponent: oracle.TargetExponent})
	feed.Set(oracle.Observation{FeedID: feedB, Price: price1000, Exponent: oracle.TargetExponent})

	fy := &fakeYield{yieldPer: 50}
	svc := &BattleService{
		Repo:     store,
		Oracle:   oracle.NewReader(feed, nil),
		Yield:    fy,
		Receipts: receipt.NewLedger(store),
		Flags:    &SystemSettingsService{Repo: store},
		Config:   config.SettlementConfig{ForwardBps: forwardBps, RetryBatch: 10, KeeperBatch: 10},
		Now:      clock.Now,
	}
	ctx := context.Background()
	_, err = svc.InitProtocol(ctx, ops, "treasury")
	require.NoError(t, err)
	return &testEnv{svc: svc, store: store, feed: feed, clock: clock, yield: fy}
}

func (e *testEnv) fund(t *testing.T, user string, amount uint64) {
	t.Helper()
	_, err := e.svc.CreditAccount(context.Background(), ops, user, amount)
	require.NoError(t, err)
}

func (e *testEnv) create(t *testing.T, caller string) *models.Battle {
	t.Helper()
	b, err := e.svc.CreateBattle(context.Background(), caller, CreateBattleInput{
		TokenA: "BONK", TokenB: "WIF", PriceFeedA: feedA, PriceFeedB: feedB, Duration: battle.MinDuration,
	})
	require.NoError(t, err)
	return b
}

func (e *testEnv) deposit(t *testing.T, user string, battleID uint64, team battle.Team, amount uint64) *DepositResult {
	t.Helper()
	out, err := e.svc.Deposit(context.Background(), DepositInput{UserID: user, BattleID: battleID, Team: team, Amount: amount})
	require.NoError(t, err)
	return out
}

func (e *testEnv) balance(t *testing.T, user string) uint64 {
	t.Helper()
	view, err := e.svc.GetAccount(context.Background(), user, 10)
	require.NoError(t, err)
	return view.Account.Balance
}

func (e *testEnv) vault(t *testing.T, battleID uint64, team battle.Team) models.Vault {
	t.Helper()
	v, err := e.store.GetVaultTx(context.Background(), nil, battleID, team)
	require.NoError(t, err)
	require.NotNil(t, v)
	return *v
}

func (e *testEnv) assertStakeTotals(t *testing.T, battleID uint64) {
	t.Helper()
	ctx := context.Background()
	b, err := e.store.GetBattle(ctx, battleID)
	require.NoError(t, err)
	sums, err := e.store.SumStakedPrincipal(ctx, battleID)
	require.NoError(t, err)
	assert.Equal(t, b.TotalStakedA, sums[battle.TeamA], "team A total")
	assert.Equal(t, b.TotalStakedB, sums[battle.TeamB], "team B total")
}

func TestCreateBattleAllocatesIDs(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	first := env.create(t, ops)
	second := env.create(t, ops)
	assert.Equal(t, uint64(1), first.ID)
	assert.Equal(t, uint64(2), second.ID)
	assert.Equal(t, "1/A", first.VaultA)
	assert.Equal(t, price1000, first.InitialPriceA)
	assert.Equal(t, env.clock.now.Add(battle.MinDuration), first.EndTime)

	_, err := env.svc.CreateBattle(ctx, ops, CreateBattleInput{
		ID: 2, TokenA: "A", TokenB: "B", PriceFeedA: feedA, PriceFeedB: feedB, Duration: battle.MinDuration,
	})
	assert.ErrorIs(t, err, battle.ErrBattleExists)

	_, err = env.svc.CreateBattle(ctx, ops, CreateBattleInput{
		TokenA: "A", TokenB: "B", PriceFeedA: feedA, PriceFeedB: feedB, Duration: time.Hour,
	})
	assert.ErrorIs(t, err, battle.ErrInvalidDuration)

	p, err := env.svc.GetProtocol(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), p.TotalBattles)
}

func TestCreateBattleRejectsStalePrice(t *testing.T) {
	env := newTestEnv(t, 0)
	stale := oracle.NewStaticFeed(false)
	stale.Set(oracle.Observation{FeedID: feedA, Price: price1000, Exponent: -8, PublishTime: env.clock.now.Add(-2 * time.Minute)})
	stale.Set(oracle.Observation{FeedID: feedB, Price: price1000, Exponent: -8, PublishTime: env.clock.now})
	env.svc.Oracle = oracle.NewReader(stale, nil)

	_, err := env.svc.CreateBattle(context.Background(), ops, CreateBattleInput{
		TokenA: "A", TokenB: "B", PriceFeedA: feedA, PriceFeedB: feedB, Duration: battle.MinDuration,
	})
	assert.ErrorIs(t, err, battle.ErrStalePriceFeed)

	items, total, err := env.svc.ListBattles(context.Background(), repository.ListBattlesParams{})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, total)
}

func TestDepositSettleClaimDecisive(t *testing.T) {
	env := newTestEnv(t, battle.BpsDivisor)
	ctx := context.Background()
	notifier := &recordingNotifier{}
	env.svc.Notifier = notifier

	env.fund(t, "alice", 1000)
	env.fund(t, "bob", 1000)
	b := env.create(t, ops)

	dep := env.deposit(t, "alice", b.ID, battle.TeamA, 1000)
	require.NotNil(t, dep.Forward)
	assert.Equal(t, models.YieldForwardDone, dep.Forward.Status)
	env.deposit(t, "bob", b.ID, battle.TeamB, 1000)

	va := env.vault(t, b.ID, battle.TeamA)
	assert.Equal(t, uint64(1000), va.LentAmount)
	assert.Zero(t, va.OnHand)
	assert.Zero(t, env.balance(t, "alice"))

	env.clock.Advance(battle.MinDuration)
	env.feed.Set(oracle.Observation{FeedID: feedA, Price: price1002, Exponent: -8})

	res, err := env.svc.Settle(ctx, ops, b.ID)
	require.NoError(t, err)
	assert.Equal(t, battle.TeamA, res.Outcome.Winner)
	assert.Equal(t, int64(20), res.Outcome.GrowthA)
	assert.Zero(t, res.Outcome.GrowthB)
	assert.Equal(t, uint64(100), res.Outcome.TotalYield)
	assert.Equal(t, uint64(5), res.Outcome.ProtocolFee)
	assert.Equal(t, uint64(95), res.Outcome.YieldA)
	assert.Equal(t, battle.StatusSettled, res.Battle.Status)
	assert.Equal(t, []uint64{b.ID}, notifier.settled)
	assert.Equal(t, uint64(5), env.balance(t, "treasury"))

	_, err = env.svc.Settle(ctx, ops, b.ID)
	assert.ErrorIs(t, err, battle.ErrBattleNotActive)

	alice, err := env.svc.Claim(ctx, "alice", b.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1095), alice.Amount)
	assert.Equal(t, uint64(95), alice.Position.RewardAmount)

	bob, err := env.svc.Claim(ctx, "bob", b.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), bob.Amount)

	_, err = env.svc.Claim(ctx, "alice", b.ID)
	assert.ErrorIs(t, err, battle.ErrAlreadyClaimed)
	_, err = env.svc.Withdraw(ctx, "alice", b.ID)
	assert.ErrorIs(t, err, battle.ErrAlreadyClaimed)

	assert.Equal(t, uint64(1095), env.balance(t, "alice"))
	assert.Equal(t, uint64(1000), env.balance(t, "bob"))
	assert.Zero(t, env.vault(t, b.ID, battle.TeamA).OnHand)
	assert.Zero(t, env.vault(t, b.ID, battle.TeamB).OnHand)

	held, err := env.svc.Receipts.Balance(ctx, nil, battle.ReceiptMintFor(b.ID, battle.TeamA), "alice")
	require.NoError(t, err)
	assert.Zero(t, held)

	p, err := env.svc.GetProtocol(ctx)
	require.NoError(t, err)
	assert.Zero(t, p.TotalValueLocked)
	assert.Equal(t, uint64(5), p.TotalFeesCollected)
	env.assertStakeTotals(t, b.ID)
}

func TestSettleTieSplitsYieldByStake(t *testing.T) {
	env := newTestEnv(t, battle.BpsDivisor)
	ctx := context.Background()

	env.fund(t, "alice", 300)
	env.fund(t, "bob", 100)
	b := env.create(t, ops)
	env.deposit(t, "alice", b.ID, battle.TeamA, 300)
	env.deposit(t, "bob", b.ID, battle.TeamB, 100)

	env.clock.Advance(battle.MinDuration)
	res, err := env.svc.Settle(ctx, ops, b.ID)
	require.NoError(t, err)
	assert.Equal(t, battle.TeamNone, res.Outcome.Winner)
	assert.Equal(t, uint64(95), res.Outcome.WinnerYield)
	assert.Equal(t, uint64(71), res.Outcome.YieldA)
	assert.Equal(t, uint64(24), res.Outcome.YieldB)

	alice, err := env.svc.Claim(ctx, "alice", b.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(371), alice.Amount)
	bob, err := env.svc.Claim(ctx, "bob", b.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(123), bob.Amount)
}

func TestTieClaimsStayFundedAfterWithdraw(t *testing.T) {
	env := newTestEnv(t, battle.BpsDivisor/2)
	ctx := context.Background()

	for _, user := range []string{"u1", "u3", "u4"} {
		env.fund(t, user, 1000)
	}
	env.fund(t, "u2", 3000)
	b := env.create(t, ops)
	env.deposit(t, "u1", b.ID, battle.TeamA, 1000)
	env.deposit(t, "u2", b.ID, battle.TeamB, 3000)
	env.deposit(t, "u3", b.ID, battle.TeamA, 1000)
	env.deposit(t, "u4", b.ID, battle.TeamA, 1000)

	env.clock.Advance(battle.MinDuration)
	res, err := env.svc.Settle(ctx, ops, b.ID)
	require.NoError(t, err)
	require.Equal(t, battle.TeamNone, res.Outcome.Winner)
	require.Equal(t, uint64(190), res.Outcome.WinnerYield)
	require.Equal(t, uint64(95), res.Outcome.YieldA)
	require.Equal(t, uint64(95), res.Outcome.YieldB)
	assert.Equal(t, uint64(3000), res.Battle.SettledStakedA)
	assert.Equal(t, uint64(3000), res.Battle.SettledStakedB)

	out, err := env.svc.Withdraw(ctx, "u2", b.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(3000), out.Amount)
	assert.Zero(t, out.Penalty)
	assert.Equal(t, uint64(95), env.vault(t, b.ID, battle.TeamB).OnHand)
	env.assertStakeTotals(t, b.ID)

	got, err := env.svc.GetBattle(ctx, b.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Battle.TotalStakedB)
	assert.Equal(t, uint64(3000), got.Battle.SettledStakedB)

	for _, user := range []string{"u1", "u3", "u4"} {
		claim, err := env.svc.Claim(ctx, user, b.ID)
		require.NoError(t, err, user)
		assert.Equal(t, uint64(1031), claim.Amount, user)
		assert.Equal(t, uint64(1031), env.balance(t, user), user)
	}
	assert.Equal(t, uint64(2), env.vault(t, b.ID, battle.TeamA).OnHand)
	assert.Equal(t, uint64(3000), env.balance(t, "u2"))
}

func TestWithdrawAfterSettleForfeitsYieldShare(t *testing.T) {
	env := newTestEnv(t, battle.BpsDivisor)
	ctx := context.Background()

	env.fund(t, "alice", 1000)
	env.fund(t, "carol", 1000)
	env.fund(t, "bob", 1000)
	b := env.create(t, ops)
	env.deposit(t, "alice", b.ID, battle.TeamA, 1000)
	env.deposit(t, "carol", b.ID, battle.TeamA, 1000)
	env.deposit(t, "bob", b.ID, battle.TeamB, 1000)

	env.clock.Advance(battle.MinDuration)
	env.feed.Set(oracle.Observation{FeedID: feedA, Price: price1002, Exponent: -8})
	res, err := env.svc.Settle(ctx, ops, b.ID)
	require.NoError(t, err)
	require.Equal(t, battle.TeamA, res.Outcome.Winner)
	yieldA := res.Outcome.YieldA
	require.NotZero(t, yieldA)

	carol, err := env.svc.Withdraw(ctx, "carol", b.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), carol.Amount)
	assert.Zero(t, carol.Penalty)
	assert.True(t, carol.Position.Withdrawn)
	env.assertStakeTotals(t, b.ID)

	_, err = env.svc.Claim(ctx, "carol", b.ID)
	assert.ErrorIs(t, err, battle.ErrAlreadyClaimed)

	alice, err := env.svc.Claim(ctx, "alice", b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1000+yieldA/2, alice.Amount)
	bob, err := env.svc.Claim(ctx, "bob", b.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), bob.Amount)

	va := env.vault(t, b.ID, battle.TeamA)
	assert.Equal(t, yieldA-yieldA/2, va.OnHand)
	assert.Equal(t, 1000+yieldA/2, va.ClaimedAmount)
	assert.Equal(t, uint64(1000), va.TotalAmount)
	assert.Zero(t, env.vault(t, b.ID, battle.TeamB).OnHand)
}

func TestSettleGuards(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	env.fund(t, "alice", 10)
	b := env.create(t, ops)
	env.deposit(t, "alice", b.ID, battle.TeamA, 10)

	_, err := env.svc.Settle(ctx, ops, b.ID)
	assert.ErrorIs(t, err, battle.ErrBattleNotEnded)

	_, err = env.svc.Claim(ctx, "alice", b.ID)
	assert.ErrorIs(t, err, battle.ErrBattleNotSettled)

	env.clock.Advance(battle.MinDuration)
	_, err = env.svc.Settle(ctx, "mallory", b.ID)
	assert.ErrorIs(t, err, battle.ErrUnauthorized)

	_, err = env.svc.Settle(ctx, ops, 99)
	assert.ErrorIs(t, err, battle.ErrBattleNotFound)

	_, err = env.svc.Claim(ctx, "nobody", b.ID)
	assert.ErrorIs(t, err, battle.ErrPositionNotFound)
}

func TestDepositValidation(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	env.fund(t, "alice", 100)
	b := env.create(t, ops)

	cases := []struct {
		name string
		in   DepositInput
		want error
	}{
		{"zero amount", DepositInput{UserID: "alice", BattleID: b.ID, Team: battle.TeamA}, battle.ErrInvalidAmount},
		{"no team", DepositInput{UserID: "alice", BattleID: b.ID, Amount: 1}, battle.ErrInvalidTeam},
		{"foreign vault", DepositInput{UserID: "alice", BattleID: b.ID, Team: battle.TeamA, Amount: 1, VaultRef: "1/B"}, battle.ErrInvalidVault},
		{"unknown battle", DepositInput{UserID: "alice", BattleID: 42, Team: battle.TeamA, Amount: 1}, battle.ErrBattleNotFound},
		{"over balance", DepositInput{UserID: "alice", BattleID: b.ID, Team: battle.TeamA, Amount: 101}, battle.ErrInsufficientFunds},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Deposit(ctx, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, uint64(100), env.balance(t, "alice"))

	env.clock.Advance(battle.MinDuration)
	_, err := env.svc.Deposit(ctx, DepositInput{UserID: "alice", BattleID: b.ID, Team: battle.TeamA, Amount: 1})
	assert.ErrorIs(t, err, battle.ErrBattleTimeExpired)
}

func TestDepositRejectsTeamChange(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	env.fund(t, "alice", 1000)
	b := env.create(t, ops)

	env.deposit(t, "alice", b.ID, battle.TeamA, 100)
	env.deposit(t, "alice", b.ID, battle.TeamA, 50)

	_, err := env.svc.Deposit(ctx, DepositInput{UserID: "alice", BattleID: b.ID, Team: battle.TeamB, Amount: 50})
	assert.ErrorIs(t, err, battle.ErrCannotChangeTeam)

	pos, err := env.svc.GetPosition(ctx, "alice", b.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), pos.AmountStaked)
	assert.Equal(t, battle.TeamA, pos.Team)
	assert.Equal(t, uint64(850), env.balance(t, "alice"))
	env.assertStakeTotals(t, b.ID)
}

func TestWithdrawPenaltyOnlyWhileActive(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	env.fund(t, "alice", 2_000_000)

	active := env.create(t, ops)
	env.deposit(t, "alice", active.ID, battle.TeamA, 1_000_000)
	early, err := env.svc.Withdraw(ctx, "alice", active.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(990_000), early.Amount)
	assert.Equal(t, uint64(10_000), early.Penalty)
	assert.True(t, early.Position.Withdrawn)
	assert.Equal(t, uint64(10_000), env.vault(t, active.ID, battle.TeamA).OnHand)
	env.assertStakeTotals(t, active.ID)

	_, err = env.svc.Withdraw(ctx, "alice", active.ID)
	assert.ErrorIs(t, err, battle.ErrAlreadyClaimed)

	cancelled := env.create(t, ops)
	env.deposit(t, "alice", cancelled.ID, battle.TeamB, 1_000_000)
	_, err = env.svc.Cancel(ctx, "mallory", cancelled.ID)
	assert.ErrorIs(t, err, battle.ErrUnauthorized)
	_, err = env.svc.Cancel(ctx, ops, cancelled.ID)
	require.NoError(t, err)

	full, err := env.svc.Withdraw(ctx, "alice", cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), full.Amount)
	assert.Zero(t, full.Penalty)
	assert.Equal(t, uint64(1_990_000), env.balance(t, "alice"))
}

func TestEarlyWithdrawRecallsDelegatedPrincipal(t *testing.T) {
	env := newTestEnv(t, battle.BpsDivisor)
	ctx := context.Background()
	env.fund(t, "alice", 1000)
	env.fund(t, "bob", 1000)
	b := env.create(t, ops)
	env.deposit(t, "alice", b.ID, battle.TeamA, 1000)
	env.deposit(t, "bob", b.ID, battle.TeamB, 1000)

	out, err := env.svc.Withdraw(ctx, "alice", b.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(990), out.Amount)

	va := env.vault(t, b.ID, battle.TeamA)
	assert.Zero(t, va.LentAmount)
	assert.Zero(t, va.TotalAmount)
	assert.Equal(t, uint64(10), va.OnHand)

	got, err := env.store.GetBattle(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), got.EarlyYield)

	env.clock.Advance(battle.MinDuration)
	res, err := env.svc.Settle(ctx, ops, b.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), res.Outcome.TotalYield)
	env.assertStakeTotals(t, b.ID)
}

func TestFailedForwardKeepsDepositAndRetries(t *testing.T) {
	env := newTestEnv(t, 5000)
	ctx := context.Background()
	env.fund(t, "alice", 1000)
	b := env.create(t, ops)

	env.yield.setFail(true)
	dep := env.deposit(t, "alice", b.ID, battle.TeamA, 1000)
	require.NotNil(t, dep.Forward)
	assert.Equal(t, models.YieldForwardPending, dep.Forward.Status)
	assert.Equal(t, 1, dep.Forward.Attempts)
	assert.Equal(t, uint64(500), dep.Forward.Amount)
	assert.NotEmpty(t, dep.Forward.LastError)

	va := env.vault(t, b.ID, battle.TeamA)
	assert.Equal(t, uint64(1000), va.OnHand)
	assert.Zero(t, va.LentAmount)
	assert.Equal(t, uint64(1000), va.TotalAmount)

	n, err := env.svc.RetryYieldForwards(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	env.yield.setFail(false)
	n, err = env.svc.RetryYieldForwards(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	va = env.vault(t, b.ID, battle.TeamA)
	assert.Equal(t, uint64(500), va.OnHand)
	assert.Equal(t, uint64(500), va.LentAmount)

	pending, err := env.store.ListPendingYieldForwards(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestForwardingSwitchOff(t *testing.T) {
	env := newTestEnv(t, battle.BpsDivisor)
	ctx := context.Background()
	require.NoError(t, env.svc.Flags.SetEnabled(ctx, FeatureYieldForwarding, false, ops))
	env.fund(t, "alice", 100)
	b := env.create(t, ops)

	dep := env.deposit(t, "alice", b.ID, battle.TeamA, 100)
	require.NotNil(t, dep.Forward)
	assert.Equal(t, models.YieldForwardPending, dep.Forward.Status)
	assert.Zero(t, env.yield.calls)
}

func TestSettleEndedUsesKeeperIdentity(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	env.svc.Config.KeeperIdentity = "keeper"

	owned := env.create(t, "keeper")
	other := env.create(t, ops)
	env.clock.Advance(battle.MinDuration)

	n, err := env.svc.SettleEnded(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := env.svc.GetBattle(ctx, owned.ID)
	require.NoError(t, err)
	assert.Equal(t, battle.StatusSettled, got.Battle.Status)
	got, err = env.svc.GetBattle(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, battle.StatusActive, got.Battle.Status)
}

func TestProtocolAuthority(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	_, err := env.svc.InitProtocol(ctx, "someone", "")
	assert.ErrorIs(t, err, battle.ErrProtocolExists)

	_, err = env.svc.CreditAccount(ctx, "alice", "alice", 10)
	assert.ErrorIs(t, err, battle.ErrUnauthorized)

	next := "ops2"
	p, err := env.svc.UpdateProtocol(ctx, ops, UpdateProtocolInput{Authority: &next})
	require.NoError(t, err)
	assert.Equal(t, "ops2", p.Authority)

	_, err = env.svc.CreditAccount(ctx, ops, "alice", 10)
	assert.ErrorIs(t, err, battle.ErrUnauthorized)
	_, err = env.svc.CreditAccount(ctx, "ops2", "alice", 10)
	require.NoError(t, err)

	view, err := env.svc.GetAccount(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, view.Ledger, 1)
	assert.Equal(t, models.LedgerKindCredit, view.Ledger[0].Kind)
}
