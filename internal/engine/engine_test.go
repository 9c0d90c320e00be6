package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"

	"inscription-contest/internal/chain"
	"inscription-contest/internal/engine"
	"inscription-contest/internal/ledger/ledgertest"
	"inscription-contest/internal/logger"
	"inscription-contest/internal/models"
)

var testTime = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func newEngine(store *ledgertest.Store, cfg engine.Config) *engine.Engine {
	if cfg.LeaderboardMinBlocks == 0 {
		cfg.LeaderboardMinBlocks = 2
	}
	if cfg.MaxLeaderBlocks == 0 {
		cfg.MaxLeaderBlocks = 10
	}
	return engine.New(store, cfg, clock.NewTestClock(testTime), logger.New(false))
}

func process(t *testing.T, e *engine.Engine, height int64) *engine.Decision {
	t.Helper()
	d, err := e.ProcessBlock(context.Background(), height, "hash", chain.BlockStats{Height: height})
	require.NoError(t, err)
	return d
}

func addActive(store *ledgertest.Store, ticker string, votes int64, createdAt time.Time) models.Proposal {
	return store.AddProposal(models.Proposal{
		Ticker:     ticker,
		TotalVotes: votes,
		Status:     models.StatusActive,
		CreatedAt:  createdAt,
	})
}

func TestPromotionThenSurvival(t *testing.T) {
	store := ledgertest.New()
	doge := addActive(store, "DOGE", 1500, testTime)
	for i, tk := range []string{"PEPE", "WIF", "SHIB"} {
		addActive(store, tk, int64(100*(i+1)), testTime)
	}

	e := newEngine(store, engine.Config{LeaderboardMinBlocks: 1})

	// Promotion block: leader, no decision yet.
	require.Nil(t, process(t, e, 101))
	got := store.Proposal(doge.ID)
	require.Equal(t, models.StatusLeader, got.Status)
	require.Equal(t, int64(101), got.LeaderStartBlock)
	require.Equal(t, int64(111), got.ExpirationBlock)
	require.NotNil(t, got.FirstTimeAsLeader)
	require.Equal(t, testTime, *got.FirstTimeAsLeader)

	// Survived one block: inscribing, single decision.
	d := process(t, e, 102)
	require.NotNil(t, d)
	require.Equal(t, doge.ID, d.Proposal.ID)
	require.Equal(t, int64(102), d.Height)
	require.Equal(t, models.StatusInscribing, store.Proposal(doge.ID).Status)
}

func TestSurvivalNeverEarlierThanMinBlocks(t *testing.T) {
	store := ledgertest.New()
	doge := addActive(store, "DOGE", 1500, testTime)

	e := newEngine(store, engine.Config{LeaderboardMinBlocks: 3})

	require.Nil(t, process(t, e, 101))
	require.Nil(t, process(t, e, 102))
	require.Nil(t, process(t, e, 103))
	require.Equal(t, models.StatusLeader, store.Proposal(doge.ID).Status)

	d := process(t, e, 104)
	require.NotNil(t, d)
	require.Equal(t, models.StatusInscribing, store.Proposal(doge.ID).Status)
}

func TestDethroneIsImmediate(t *testing.T) {
	store := ledgertest.New()
	doge := addActive(store, "DOGE", 1500, testTime)
	pepe := addActive(store, "PEPE", 1000, testTime.Add(time.Minute))

	e := newEngine(store, engine.Config{LeaderboardMinBlocks: 2})

	require.Nil(t, process(t, e, 101)) // DOGE 0/2
	require.Nil(t, process(t, e, 102)) // DOGE 1/2

	// PEPE overtakes between blocks.
	p := store.Proposal(pepe.ID)
	p.TotalVotes = 2000
	require.NoError(t, store.SaveProposal(&p))

	require.Nil(t, process(t, e, 103))
	require.Equal(t, models.StatusExpired, store.Proposal(doge.ID).Status)

	got := store.Proposal(pepe.ID)
	require.Equal(t, models.StatusLeader, got.Status)
	require.Equal(t, int64(103), got.LeaderStartBlock)
}

func TestDethronePolicyReject(t *testing.T) {
	store := ledgertest.New()
	doge := addActive(store, "DOGE", 1500, testTime)
	pepe := addActive(store, "PEPE", 1000, testTime)

	e := newEngine(store, engine.Config{DethroneStatus: models.StatusRejected})

	require.Nil(t, process(t, e, 101))
	p := store.Proposal(pepe.ID)
	p.TotalVotes = 2000
	require.NoError(t, store.SaveProposal(&p))

	require.Nil(t, process(t, e, 102))
	require.Equal(t, models.StatusRejected, store.Proposal(doge.ID).Status)
}

func TestTieBreakByCreationTime(t *testing.T) {
	store := ledgertest.New()
	late := store.AddProposal(models.Proposal{
		Ticker: "LATE", TotalVotes: 500, Status: models.StatusActive,
		CreatedAt: testTime.Add(time.Hour),
	})
	early := store.AddProposal(models.Proposal{
		Ticker: "EARLY", TotalVotes: 500, Status: models.StatusActive,
		CreatedAt: testTime,
	})

	e := newEngine(store, engine.Config{})
	require.Nil(t, process(t, e, 101))

	require.Equal(t, models.StatusLeader, store.Proposal(early.ID).Status)
	require.Equal(t, models.StatusActive, store.Proposal(late.ID).Status)
}

func TestLeaderTimeout(t *testing.T) {
	store := ledgertest.New()
	doge := addActive(store, "DOGE", 1500, testTime)

	// Survival requirement longer than the leadership deadline.
	e := newEngine(store, engine.Config{LeaderboardMinBlocks: 5, MaxLeaderBlocks: 2})

	require.Nil(t, process(t, e, 101)) // deadline 103
	require.Nil(t, process(t, e, 102))
	require.Nil(t, process(t, e, 103))
	require.Equal(t, models.StatusLeader, store.Proposal(doge.ID).Status)

	require.Nil(t, process(t, e, 104))
	require.Equal(t, models.StatusExpired, store.Proposal(doge.ID).Status)
}

func TestSweepContendersOnPromotion(t *testing.T) {
	store := ledgertest.New()
	doge := addActive(store, "DOGE", 1500, testTime)
	pepe := addActive(store, "PEPE", 300, testTime)
	wif := addActive(store, "WIF", 200, testTime)

	e := newEngine(store, engine.Config{LeaderboardMinBlocks: 1, SweepContenders: true})

	require.Nil(t, process(t, e, 101))
	require.Equal(t, models.StatusLeader, store.Proposal(doge.ID).Status)
	require.Equal(t, models.StatusExpired, store.Proposal(pepe.ID).Status)
	require.Equal(t, models.StatusExpired, store.Proposal(wif.ID).Status)

	d := process(t, e, 102)
	require.NotNil(t, d)
	require.Equal(t, models.StatusInscribing, store.Proposal(doge.ID).Status)
}

func TestAtMostOneLeadershipHolder(t *testing.T) {
	store := ledgertest.New()
	addActive(store, "DOGE", 1500, testTime)
	addActive(store, "PEPE", 1000, testTime)
	addActive(store, "WIF", 500, testTime)

	e := newEngine(store, engine.Config{LeaderboardMinBlocks: 1})

	for h := int64(101); h <= 110; h++ {
		_, err := e.ProcessBlock(context.Background(), h, "hash", chain.BlockStats{})
		require.NoError(t, err)

		holders, err := store.LeadershipHolders()
		require.NoError(t, err)
		require.LessOrEqual(t, len(holders), 1, "height %d", h)
	}
}

func TestInvariantViolationHaltsBlock(t *testing.T) {
	store := ledgertest.New()
	store.AddProposal(models.Proposal{Ticker: "A", Status: models.StatusLeader})
	store.AddProposal(models.Proposal{Ticker: "B", Status: models.StatusLeader})
	pepe := addActive(store, "PEPE", 9000, testTime)

	e := newEngine(store, engine.Config{})
	_, err := e.ProcessBlock(context.Background(), 101, "hash", chain.BlockStats{})
	require.ErrorIs(t, err, engine.ErrInvariantViolation)

	// No transitions happened for the block.
	require.Equal(t, models.StatusActive, store.Proposal(pepe.ID).Status)
}

func TestNoTransitionsWhileInscribing(t *testing.T) {
	store := ledgertest.New()
	store.AddProposal(models.Proposal{Ticker: "DOGE", Status: models.StatusInscribing, TotalVotes: 1500})
	pepe := addActive(store, "PEPE", 9000, testTime)

	e := newEngine(store, engine.Config{})
	require.Nil(t, process(t, e, 101))
	require.Equal(t, models.StatusActive, store.Proposal(pepe.ID).Status)
}

func TestForceExpire(t *testing.T) {
	store := ledgertest.New()
	doge := addActive(store, "DOGE", 10, testTime)

	e := newEngine(store, engine.Config{})
	require.NoError(t, e.ForceExpire(doge.ID, "spam"))
	require.Equal(t, models.StatusExpired, store.Proposal(doge.ID).Status)

	// Already terminal.
	require.Error(t, e.ForceExpire(doge.ID, "again"))
	// Unknown id.
	require.Error(t, e.ForceExpire(999, "nope"))
}

func TestResetCompetition(t *testing.T) {
	store := ledgertest.New()
	ft := testTime
	leader := store.AddProposal(models.Proposal{
		Ticker: "LEAD", Status: models.StatusLeader,
		FirstTimeAsLeader: &ft, LeaderStartBlock: 101, ExpirationBlock: 111,
	})
	inscribing := store.AddProposal(models.Proposal{Ticker: "INSC", Status: models.StatusInscribing})
	expired := store.AddProposal(models.Proposal{Ticker: "EXP", Status: models.StatusExpired})
	inscribed := store.AddProposal(models.Proposal{Ticker: "DONE", Status: models.StatusInscribed})
	rejected := store.AddProposal(models.Proposal{Ticker: "BAD", Status: models.StatusRejected})

	e := newEngine(store, engine.Config{})
	require.NoError(t, e.Reset("new round"))

	for _, id := range []uint{leader.ID, inscribing.ID, expired.ID} {
		got := store.Proposal(id)
		require.Equal(t, models.StatusActive, got.Status)
		require.Nil(t, got.FirstTimeAsLeader)
		require.Zero(t, got.LeaderStartBlock)
		require.Zero(t, got.ExpirationBlock)
	}
	require.Equal(t, models.StatusInscribed, store.Proposal(inscribed.ID).Status)
	require.Equal(t, models.StatusRejected, store.Proposal(rejected.ID).Status)
}

func TestStatusCountsAndTop(t *testing.T) {
	store := ledgertest.New()
	addActive(store, "DOGE", 1500, testTime)
	addActive(store, "PEPE", 100, testTime)
	store.AddProposal(models.Proposal{Ticker: "OLD", Status: models.StatusExpired})
	store.AddProposal(models.Proposal{Ticker: "DONE", Status: models.StatusInscribed})

	e := newEngine(store, engine.Config{LeaderboardMinBlocks: 2})
	require.Nil(t, process(t, e, 101))

	st, err := e.Status()
	require.NoError(t, err)
	require.Equal(t, int64(1), st.TotalActive)
	require.Equal(t, int64(1), st.CurrentLeaders)
	require.Equal(t, int64(1), st.TotalExpired)
	require.Equal(t, int64(1), st.TotalInscribed)
	require.Zero(t, st.CurrentlyInscribing)

	require.NotNil(t, st.Top)
	require.Equal(t, "DOGE", st.Top.Ticker)
	require.Equal(t, models.StatusLeader, st.Top.Status)
	require.Zero(t, st.Top.BlocksAsLeader)

	require.Len(t, st.Contenders, 2)
	require.Equal(t, "DOGE", st.Contenders[0].Ticker)
	require.Equal(t, "PEPE", st.Contenders[1].Ticker)

	require.Nil(t, process(t, e, 102))
	st, err = e.Status()
	require.NoError(t, err)
	require.Equal(t, int64(1), st.Top.BlocksAsLeader)
}
