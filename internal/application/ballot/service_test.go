package ballot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/facevote-api/internal/application/votetoken"
	"github.com/facevote-api/internal/domain"
	redisinfra "github.com/facevote-api/internal/infrastructure/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

// memBallots mirrors the conditional put of the DynamoDB ballot table.
type memBallots struct {
	mu      sync.Mutex
	byPair  map[string]*domain.Ballot
	inserts int
}

func newMemBallots() *memBallots { return &memBallots{byPair: map[string]*domain.Ballot{}} }

func (m *memBallots) Insert(_ context.Context, b *domain.Ballot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := b.TargetID + "|" + b.VoterID
	if _, ok := m.byPair[key]; ok {
		return domain.ErrConflict
	}
	m.byPair[key] = b
	m.inserts++
	return nil
}

func (m *memBallots) Exists(_ context.Context, voterID, targetID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byPair[targetID+"|"+voterID]
	return ok, nil
}

func (m *memBallots) GetByVoteID(_ context.Context, voteID string) (*domain.Ballot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.byPair {
		if b.VoteID == voteID {
			return b, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memBallots) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byPair)
}

type mockTargets struct{ mock.Mock }

func (m *mockTargets) Get(ctx context.Context, targetID string) (*domain.Target, error) {
	args := m.Called(ctx, targetID)
	if t := args.Get(0); t != nil {
		return t.(*domain.Target), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockTokens struct{ mock.Mock }

func (m *mockTokens) ConsumeAndValidate(ctx context.Context, token, bearer string) error {
	return m.Called(ctx, token, bearer).Error(0)
}

// --- builder ---

const alice = "alice@example.com"

func election42() *domain.Target {
	return &domain.Target{
		TargetID: "election-42",
		Kind:     domain.TargetElection,
		Title:    "Board election",
		Questions: []domain.Question{
			{QuestionID: "q1", Options: []string{"optA", "optB"}, MaxSelections: 1},
			{QuestionID: "q2", Options: []string{"x", "y", "z"}, MaxSelections: 2},
		},
	}
}

type fixture struct {
	svc     Service
	tokens  votetoken.Service
	ballots *memBallots
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	targets := &mockTargets{}
	targets.On("Get", mock.Anything, "election-42").Return(election42(), nil)
	targets.On("Get", mock.Anything, mock.Anything).Return(nil, domain.ErrNotFound)

	tokens := votetoken.NewService(redisinfra.NewCache(client, "vote:"), 5*time.Minute)
	ballots := newMemBallots()
	return &fixture{svc: NewService(ballots, targets, tokens), tokens: tokens, ballots: ballots}
}

func (f *fixture) mint(t *testing.T, bearer string) string {
	t.Helper()
	tok, _, err := f.tokens.Mint(context.Background(), bearer)
	require.NoError(t, err)
	return tok
}

func castReq(token string) domain.CastRequest {
	return domain.CastRequest{Token: token, TargetID: "election-42", Selections: map[string][]string{"q1": {"optA"}}}
}

// --- Cast ---

func TestCast_Accepted(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Cast(context.Background(), alice, castReq(f.mint(t, alice)))
	require.NoError(t, err)
	assert.Equal(t, domain.StateAccepted, res.State)
	assert.Len(t, res.VoteID, 32)

	b, err := f.svc.Receipt(context.Background(), res.VoteID)
	require.NoError(t, err)
	assert.Equal(t, alice, b.VoterID)
	assert.Equal(t, "election-42", b.TargetID)
	assert.Equal(t, []string{"optA"}, b.Selections["q1"])
}

func TestCast_SecondTokenSameTargetIsDoubleVote(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Cast(context.Background(), alice, castReq(f.mint(t, alice)))
	require.NoError(t, err)

	second := f.mint(t, alice)
	_, err = f.svc.Cast(context.Background(), alice, castReq(second))
	assert.ErrorIs(t, err, domain.ErrDoubleVoteAttempt)
	assert.Equal(t, 1, f.ballots.count())

	// the rejected cast did not spend the second token
	assert.NoError(t, f.tokens.ConsumeAndValidate(context.Background(), second, alice))
}

func TestCast_ConcurrentCastsOneBallot(t *testing.T) {
	f := newFixture(t)
	const n = 8
	toks := make([]string, n)
	for i := range toks {
		toks[i] = f.mint(t, alice)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		doubles  int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			_, err := f.svc.Cast(context.Background(), alice, castReq(tok))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
			} else if assert.ErrorIs(t, err, domain.ErrDoubleVoteAttempt) {
				doubles++
			}
		}(toks[i])
	}
	wg.Wait()
	assert.Equal(t, 1, accepted)
	assert.Equal(t, n-1, doubles)
	assert.Equal(t, 1, f.ballots.count())
}

func TestCast_TokenReplayIsExpired(t *testing.T) {
	f := newFixture(t)
	tok := f.mint(t, alice)
	_, err := f.svc.Cast(context.Background(), alice, castReq(tok))
	require.NoError(t, err)

	// same token against a different voter's ballot pair: the token is gone
	_, err = f.svc.Cast(context.Background(), "bob@example.com", castReq(tok))
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
}

func TestCast_ForeignTokenIsInvalid(t *testing.T) {
	f := newFixture(t)
	tok := f.mint(t, alice)
	_, err := f.svc.Cast(context.Background(), "mallory@example.com", castReq(tok))
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
	assert.Equal(t, 0, f.ballots.count())
}

func TestCast_UnknownTarget(t *testing.T) {
	f := newFixture(t)
	req := castReq(f.mint(t, alice))
	req.TargetID = "nope"
	_, err := f.svc.Cast(context.Background(), alice, req)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCast_InvalidBallotKeepsToken(t *testing.T) {
	f := newFixture(t)
	tok := f.mint(t, alice)
	req := castReq(tok)
	req.Selections = map[string][]string{"q1": {"optC"}}

	_, err := f.svc.Cast(context.Background(), alice, req)
	assert.ErrorIs(t, err, domain.ErrBallotInvalid)
	assert.NoError(t, f.tokens.ConsumeAndValidate(context.Background(), tok, alice))
}

func TestCast_ClosedTarget(t *testing.T) {
	closed := election42()
	past := time.Now().Add(-time.Hour)
	closed.ClosesAt = &past
	targets := &mockTargets{}
	targets.On("Get", mock.Anything, "election-42").Return(closed, nil)
	tokens := &mockTokens{}

	svc := NewService(newMemBallots(), targets, tokens)
	_, err := svc.Cast(context.Background(), alice, castReq("tok"))
	assert.Equal(t, domain.CodeBadRequest, domain.CodeOf(err))
	tokens.AssertNotCalled(t, "ConsumeAndValidate", mock.Anything, mock.Anything, mock.Anything)
}

func TestCast_RequiresVoter(t *testing.T) {
	svc := NewService(newMemBallots(), &mockTargets{}, &mockTokens{})
	_, err := svc.Cast(context.Background(), "", castReq("tok"))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

// --- ValidateSelections ---

func TestValidateSelections(t *testing.T) {
	target := election42()
	tests := []struct {
		name string
		sel  map[string][]string
		ok   bool
	}{
		{"single answer", map[string][]string{"q1": {"optB"}}, true},
		{"multi within max", map[string][]string{"q1": {"optA"}, "q2": {"x", "z"}}, true},
		{"empty ballot", map[string][]string{}, false},
		{"unknown question", map[string][]string{"q9": {"optA"}}, false},
		{"undeclared option", map[string][]string{"q1": {"optZ"}}, false},
		{"over max", map[string][]string{"q2": {"x", "y", "z"}}, false},
		{"duplicate option", map[string][]string{"q2": {"x", "x"}}, false},
		{"empty answer", map[string][]string{"q1": {}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSelections(target, tt.sel)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, domain.ErrBallotInvalid)
			}
		})
	}
}

func TestVoteID_SelectionOrderInsensitive(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &domain.Ballot{TargetID: "t", VoterID: "v", CastAt: at, Nonce: "n1", Selections: map[string][]string{"q2": {"x", "z"}, "q1": {"a"}}}
	b := &domain.Ballot{TargetID: "t", VoterID: "v", CastAt: at, Nonce: "n1", Selections: map[string][]string{"q1": {"a"}, "q2": {"z", "x"}}}
	assert.Equal(t, VoteID(a), VoteID(b))
	assert.Len(t, VoteID(a), 32)

	other := *a
	other.Nonce = "n2"
	assert.NotEqual(t, VoteID(a), VoteID(&other))
}

func TestVoteID_RecomputedFromReceipt(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Cast(context.Background(), alice, domain.CastRequest{
		Token:      f.mint(t, alice),
		TargetID:   "election-42",
		Selections: map[string][]string{"q1": {"optA"}, "q2": {"z", "x"}},
	})
	require.NoError(t, err)

	receipt, err := f.svc.Receipt(context.Background(), res.VoteID)
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.Nonce)
	assert.Equal(t, res.VoteID, VoteID(receipt))

	// any change to the recorded content breaks the match
	tampered := *receipt
	tampered.Selections = map[string][]string{"q1": {"optB"}, "q2": {"z", "x"}}
	assert.NotEqual(t, res.VoteID, VoteID(&tampered))
}
