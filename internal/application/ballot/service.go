package ballot

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/facevote-api/internal/domain"
	"github.com/facevote-api/internal/pkg/identity"
	pkgtoken "github.com/facevote-api/internal/pkg/token"
	"github.com/zeebo/blake3"
)

// Service is the cast orchestrator: it spends a vote token and records at
// most one ballot per (voter, target).
type Service interface {
	Cast(ctx context.Context, voter string, req domain.CastRequest) (*domain.CastResult, error)
	// Receipt looks up an accepted ballot by its vote id.
	Receipt(ctx context.Context, voteID string) (*domain.Ballot, error)
}

type ballotStore interface {
	Insert(ctx context.Context, b *domain.Ballot) error
	Exists(ctx context.Context, voterID, targetID string) (bool, error)
	GetByVoteID(ctx context.Context, voteID string) (*domain.Ballot, error)
}

type targetStore interface {
	Get(ctx context.Context, targetID string) (*domain.Target, error)
}

type tokenConsumer interface {
	ConsumeAndValidate(ctx context.Context, token, bearer string) error
}

type service struct {
	ballots ballotStore
	targets targetStore
	tokens  tokenConsumer
	now     func() time.Time
}

func NewService(ballots ballotStore, targets targetStore, tokens tokenConsumer) Service {
	return &service{ballots: ballots, targets: targets, tokens: tokens, now: time.Now}
}

func (s *service) Cast(ctx context.Context, voter string, req domain.CastRequest) (*domain.CastResult, error) {
	if voter == "" {
		return nil, domain.ErrUnauthorized
	}
	t, err := s.targets.Get(ctx, req.TargetID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if !t.Open(now) {
		return nil, domain.Errorf(domain.CodeBadRequest, fmt.Sprintf("target %s is not open for voting", t.TargetID))
	}
	if err := ValidateSelections(t, req.Selections); err != nil {
		return nil, err
	}

	// A ballot that already exists is reported before the token is spent so
	// the client is not sent back to mint for a cast that can never succeed.
	exists, err := s.ballots.Exists(ctx, voter, t.TargetID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrDoubleVoteAttempt
	}

	nonce, err := pkgtoken.New()
	if err != nil {
		return nil, err
	}
	if err := s.tokens.ConsumeAndValidate(ctx, req.Token, voter); err != nil {
		return nil, err
	}

	b := &domain.Ballot{
		TargetID:   t.TargetID,
		VoterID:    voter,
		Selections: req.Selections,
		CastAt:     now,
		Nonce:      nonce,
	}
	b.VoteID = VoteID(b)
	if err := s.ballots.Insert(ctx, b); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			slog.Warn("concurrent double vote rejected", "identity", identity.Mask(voter), "target_id", t.TargetID)
			return nil, domain.ErrDoubleVoteAttempt
		}
		return nil, fmt.Errorf("insert ballot: %w", err)
	}
	slog.Info("ballot accepted", "target_id", t.TargetID, "vote_id", b.VoteID)
	return &domain.CastResult{State: domain.StateAccepted, VoteID: b.VoteID}, nil
}

func (s *service) Receipt(ctx context.Context, voteID string) (*domain.Ballot, error) {
	if voteID == "" {
		return nil, domain.ErrNotFound
	}
	return s.ballots.GetByVoteID(ctx, voteID)
}

// ValidateSelections checks a ballot against the target's declared questions:
// every answered question exists, every option is declared, no option repeats
// and counts stay within max_selections.
func ValidateSelections(t *domain.Target, selections map[string][]string) error {
	if len(selections) == 0 {
		return invalid("ballot has no selections")
	}
	questions := make(map[string]*domain.Question, len(t.Questions))
	for i := range t.Questions {
		questions[t.Questions[i].QuestionID] = &t.Questions[i]
	}
	for qid, picked := range selections {
		q, ok := questions[qid]
		if !ok {
			return invalid(fmt.Sprintf("unknown question %q", qid))
		}
		if len(picked) == 0 {
			return invalid(fmt.Sprintf("question %q has no selection", qid))
		}
		if len(picked) > q.MaxSelections {
			return invalid(fmt.Sprintf("question %q allows at most %d selection(s)", qid, q.MaxSelections))
		}
		seen := make(map[string]struct{}, len(picked))
		for _, opt := range picked {
			if !contains(q.Options, opt) {
				return invalid(fmt.Sprintf("option %q is not offered for question %q", opt, qid))
			}
			if _, dup := seen[opt]; dup {
				return invalid(fmt.Sprintf("option %q selected twice for question %q", opt, qid))
			}
			seen[opt] = struct{}{}
		}
	}
	return nil
}

func invalid(msg string) error { return domain.Errorf(domain.CodeBallotInvalid, msg) }

func contains(options []string, v string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}

// VoteID is the content hash of the stored ballot. Anyone holding the record
// can recompute it; the random nonce keeps ids from being enumerated from a
// target's options.
func VoteID(b *domain.Ballot) string {
	var sb strings.Builder
	sb.WriteString(b.TargetID)
	sb.WriteByte(0)
	sb.WriteString(b.VoterID)
	sb.WriteByte(0)
	sb.WriteString(b.CastAt.UTC().Format(time.RFC3339Nano))
	sb.WriteByte(0)

	qids := make([]string, 0, len(b.Selections))
	for q := range b.Selections {
		qids = append(qids, q)
	}
	sort.Strings(qids)
	for _, q := range qids {
		opts := append([]string(nil), b.Selections[q]...)
		sort.Strings(opts)
		sb.WriteString(q)
		sb.WriteByte('=')
		sb.WriteString(strings.Join(opts, ","))
		sb.WriteByte(';')
	}
	sb.WriteByte(0)
	sb.WriteString(b.Nonce)

	sum := blake3.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:16])
}
