package verification

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/trustledger/internal/audit"
	"github.com/odyssey-erp/trustledger/internal/documents"
	"github.com/odyssey-erp/trustledger/internal/platform/memtx"
	"github.com/odyssey-erp/trustledger/internal/platform/sequence"
	"github.com/odyssey-erp/trustledger/internal/rbac"
	"github.com/odyssey-erp/trustledger/internal/shared"
	"github.com/odyssey-erp/trustledger/internal/signers"
)

const admin shared.Principal = "admin"

type fixture struct {
	svc     *Service
	docs    *documents.Service
	signers *signers.Service
	audit   *audit.Recorder
	pub     *countingPublisher
}

type countingPublisher struct {
	mu    sync.Mutex
	kinds map[audit.Kind]int
}

func (c *countingPublisher) Publish(_ context.Context, e audit.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds[e.Kind]++
	return nil
}

func (c *countingPublisher) count(kind audit.Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kinds[kind]
}

func newFixture(t *testing.T, members []shared.Principal, threshold int) fixture {
	t.Helper()
	ctx := context.Background()
	tx := memtx.New()
	seq := sequence.NewMemory(tx)
	pub := &countingPublisher{kinds: map[audit.Kind]int{}}
	rec := audit.NewRecorder(audit.NewMemoryRepository(tx), seq, pub, nil)
	roles := rbac.NewService(tx, rbac.NewMemoryRepository(tx), rec, nil)
	require.NoError(t, roles.Initialize(ctx, admin))
	signerSvc := signers.NewService(tx, signers.NewMemoryRepository(tx), roles, rec, nil)
	require.NoError(t, signerSvc.Initialize(ctx, members, threshold, admin))
	docs := documents.NewService(tx, documents.NewMemoryRepository(tx), seq, roles, rec, documents.Options{}, nil)
	svc := NewService(tx, NewMemoryRepository(tx), seq, docs, signerSvc, rec, nil)
	signerSvc.OnThresholdLowered(svc)
	return fixture{svc: svc, docs: docs, signers: signerSvc, audit: rec, pub: pub}
}

func (f fixture) register(t *testing.T, b byte) documents.Document {
	t.Helper()
	var fp documents.Fingerprint
	for i := range fp {
		fp[i] = b
	}
	doc, err := f.docs.Register(context.Background(), documents.RegisterInput{
		Fingerprint: fp, Locator: fmt.Sprintf("cid:%x", b), DisplayName: "doc",
	}, "owner")
	require.NoError(t, err)
	return doc
}

func TestTwoOfThreeApproval(t *testing.T) {
	f := newFixture(t, []shared.Principal{"A", "B", "C"}, 2)
	ctx := context.Background()
	doc := f.register(t, 1)

	req, err := f.svc.CreateRequest(ctx, doc.ID, "requester")
	require.NoError(t, err)
	require.Equal(t, int64(1), req.ID)
	require.Equal(t, StatusPending, req.Status)

	res, err := f.svc.Approve(ctx, req.ID, "A")
	require.NoError(t, err)
	require.False(t, res.Completed)
	require.Equal(t, StatusPending, res.Request.Status)
	require.Equal(t, 1, res.Request.ApprovalCount)

	res, err = f.svc.Approve(ctx, req.ID, "B")
	require.NoError(t, err)
	require.True(t, res.Completed)
	require.Equal(t, StatusApproved, res.Request.Status)
	require.Equal(t, 2, res.Request.ApprovalCount)

	res, err = f.svc.Approve(ctx, req.ID, "C")
	require.NoError(t, err)
	require.False(t, res.Completed)
	require.Equal(t, StatusApproved, res.Request.Status)

	status, err := f.svc.Status(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, status)
	count, err := f.svc.ApprovalCount(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	require.Equal(t, 1, f.pub.count(audit.KindRequestApproved))
	require.Equal(t, 2, f.pub.count(audit.KindApprovalRecorded))

	votes, err := f.svc.Approvals(ctx, req.ID, shared.Page{})
	require.NoError(t, err)
	require.Len(t, votes.Approvals, 3)
	require.Equal(t, shared.Principal("A"), votes.Approvals[0].Signer)
	require.Equal(t, 3, votes.Approvals[2].Position)
}

func TestApproveRejections(t *testing.T) {
	f := newFixture(t, []shared.Principal{"A", "B"}, 2)
	ctx := context.Background()
	doc := f.register(t, 1)
	req, err := f.svc.CreateRequest(ctx, doc.ID, "requester")
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, 99, "A")
	require.ErrorIs(t, err, ErrRequestNotFound)

	_, err = f.svc.Approve(ctx, req.ID, "mallory")
	require.ErrorIs(t, err, ErrNotEligibleSigner)
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = f.svc.Approve(ctx, req.ID, "A")
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, req.ID, "A")
	require.ErrorIs(t, err, ErrAlreadyApproved)

	count, err := f.svc.ApprovalCount(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	_, err = f.svc.Status(ctx, 42)
	require.ErrorIs(t, err, ErrRequestNotFound)
}

func TestCreateRequestChecksDocument(t *testing.T) {
	f := newFixture(t, []shared.Principal{"A"}, 1)
	ctx := context.Background()

	_, err := f.svc.CreateRequest(ctx, 7, "requester")
	require.ErrorIs(t, err, ErrDocumentNotFound)

	doc := f.register(t, 1)
	require.NoError(t, f.docs.Revoke(ctx, doc.ID, "owner"))
	_, err = f.svc.CreateRequest(ctx, doc.ID, "requester")
	require.ErrorIs(t, err, ErrDocumentRevoked)

	// the failed attempts did not consume request ids
	doc2 := f.register(t, 2)
	req, err := f.svc.CreateRequest(ctx, doc2.ID, "requester")
	require.NoError(t, err)
	require.Equal(t, int64(1), req.ID)
}

func TestRevocationAfterCreationDoesNotBlockApproval(t *testing.T) {
	f := newFixture(t, []shared.Principal{"A"}, 1)
	ctx := context.Background()
	doc := f.register(t, 1)
	req, err := f.svc.CreateRequest(ctx, doc.ID, "requester")
	require.NoError(t, err)
	require.NoError(t, f.docs.Revoke(ctx, doc.ID, "owner"))

	res, err := f.svc.Approve(ctx, req.ID, "A")
	require.NoError(t, err)
	require.True(t, res.Completed)
}

func TestLiveThreshold(t *testing.T) {
	f := newFixture(t, []shared.Principal{"A", "B", "C", "D"}, 4)
	ctx := context.Background()
	doc := f.register(t, 1)
	req, err := f.svc.CreateRequest(ctx, doc.ID, "requester")
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, req.ID, "A")
	require.NoError(t, err)

	// lowering the bar above the current count leaves the request pending
	require.NoError(t, f.signers.SetThreshold(ctx, 3, admin))
	status, err := f.svc.Status(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, status)

	_, err = f.svc.Approve(ctx, req.ID, "B")
	require.NoError(t, err)
	res, err := f.svc.Approve(ctx, req.ID, "C")
	require.NoError(t, err)
	require.True(t, res.Completed)
	require.Equal(t, 3, res.Threshold)
}

func TestLoweredThresholdCompletesReachedRequests(t *testing.T) {
	f := newFixture(t, []shared.Principal{"A", "B", "C"}, 3)
	ctx := context.Background()
	doc := f.register(t, 1)
	reached, err := f.svc.CreateRequest(ctx, doc.ID, "requester")
	require.NoError(t, err)
	short, err := f.svc.CreateRequest(ctx, doc.ID, "requester")
	require.NoError(t, err)

	for _, s := range []shared.Principal{"A", "B"} {
		_, err = f.svc.Approve(ctx, reached.ID, s)
		require.NoError(t, err)
	}
	_, err = f.svc.Approve(ctx, short.ID, "A")
	require.NoError(t, err)

	require.NoError(t, f.signers.SetThreshold(ctx, 2, admin))

	got, err := f.svc.Get(ctx, reached.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)
	require.NotNil(t, got.ApprovedAt)
	status, err := f.svc.Status(ctx, short.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, status)
	require.Equal(t, 1, f.pub.count(audit.KindRequestApproved))

	// the only signer who had not voted can leave without stranding the request
	require.NoError(t, f.signers.RemoveSigner(ctx, "C", admin))

	// the other request still completes on its own vote
	res, err := f.svc.Approve(ctx, short.ID, "B")
	require.NoError(t, err)
	require.True(t, res.Completed)
	require.Equal(t, 2, f.pub.count(audit.KindRequestApproved))

	// raising the threshold never reopens or completes anything
	require.NoError(t, f.signers.AddSigner(ctx, "C", admin))
	require.NoError(t, f.signers.SetThreshold(ctx, 3, admin))
	got, err = f.svc.Get(ctx, reached.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)
	require.Equal(t, 2, f.pub.count(audit.KindRequestApproved))
}

func TestRemovedSignerCannotVote(t *testing.T) {
	f := newFixture(t, []shared.Principal{"A", "B", "C"}, 2)
	ctx := context.Background()
	doc := f.register(t, 1)
	req, err := f.svc.CreateRequest(ctx, doc.ID, "requester")
	require.NoError(t, err)

	require.NoError(t, f.signers.RemoveSigner(ctx, "C", admin))
	_, err = f.svc.Approve(ctx, req.ID, "C")
	require.ErrorIs(t, err, ErrNotEligibleSigner)
}

func TestConcurrentApprovalsCompleteOnce(t *testing.T) {
	members := make([]shared.Principal, 10)
	for i := range members {
		members[i] = shared.Principal(fmt.Sprintf("S%02d", i))
	}
	f := newFixture(t, members, 4)
	ctx := context.Background()
	doc := f.register(t, 1)
	req, err := f.svc.CreateRequest(ctx, doc.ID, "requester")
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
	)
	for _, m := range members {
		for attempt := 0; attempt < 2; attempt++ {
			wg.Add(1)
			go func(m shared.Principal) {
				defer wg.Done()
				res, err := f.svc.Approve(ctx, req.ID, m)
				if err != nil {
					assert.ErrorIs(t, err, ErrAlreadyApproved)
					return
				}
				if res.Completed {
					mu.Lock()
					completed++
					mu.Unlock()
				}
			}(m)
		}
	}
	wg.Wait()

	require.Equal(t, 1, completed)
	count, err := f.svc.ApprovalCount(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, len(members), count)
	require.Equal(t, 1, f.pub.count(audit.KindRequestApproved))
}

func TestRequestIdsMonotonic(t *testing.T) {
	f := newFixture(t, []shared.Principal{"A"}, 1)
	ctx := context.Background()
	doc := f.register(t, 1)

	var prev int64
	for i := 0; i < 5; i++ {
		req, err := f.svc.CreateRequest(ctx, doc.ID, "requester")
		require.NoError(t, err)
		require.Equal(t, prev+1, req.ID)
		prev = req.ID
	}

	list, err := f.svc.RequestsOf(ctx, doc.ID, shared.NewPage(1, 2))
	require.NoError(t, err)
	require.Len(t, list.Requests, 2)
	require.Equal(t, 5, list.Paging.Total)

	_, err = f.svc.RequestsOf(ctx, 99, shared.Page{})
	require.ErrorIs(t, err, ErrDocumentNotFound)
}
