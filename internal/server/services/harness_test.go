package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/signoff/internal/b64x"
	"github.com/dmitrijs2005/signoff/internal/common"
	"github.com/dmitrijs2005/signoff/internal/logging"
	"github.com/dmitrijs2005/signoff/internal/server/auth"
	"github.com/dmitrijs2005/signoff/internal/server/config"
	"github.com/dmitrijs2005/signoff/internal/server/models"
	"github.com/dmitrijs2005/signoff/internal/server/notify"
	"github.com/dmitrijs2005/signoff/internal/server/sessions"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// fakeRP stands in for the WebAuthn relying party. A response is valid when
// its client data carries the expected challenge and its signature is
// "valid"; AuthenticatorData holds the asserted counter in decimal.
type fakeRP struct {
	timeout time.Duration
	// verified runs after every accepted assertion.
	verified func()

	mu  sync.Mutex
	seq int
}

func (rp *fakeRP) ID() string             { return "signoff.test" }
func (rp *fakeRP) Timeout() time.Duration { return rp.timeout }

func (rp *fakeRP) BeginRegistration(user *models.User, exclude []*models.Credential) (*models.RegistrationChallenge, *webauthn.SessionData, error) {
	rp.mu.Lock()
	rp.seq++
	challenge := b64x.Encode([]byte(fmt.Sprintf("registration-%d", rp.seq)))
	rp.mu.Unlock()

	session := &webauthn.SessionData{
		Challenge:        challenge,
		RelyingPartyID:   rp.ID(),
		UserID:           []byte(user.ID),
		UserVerification: protocol.VerificationRequired,
		Expires:          now().Add(rp.timeout),
	}
	rc := &models.RegistrationChallenge{
		Challenge: challenge,
		RPID:      rp.ID(),
		UserID:    user.ID,
		Timeout:   rp.timeout,
	}
	for _, c := range exclude {
		rc.ExcludeCredentials = append(rc.ExcludeCredentials, b64x.Encode(c.CredentialID))
	}
	return rc, session, nil
}

func (rp *fakeRP) FinishRegistration(user *models.User, session webauthn.SessionData, resp *models.RegistrationResponse) (*models.VerifiedRegistration, error) {
	if string(session.UserID) != user.ID || resp.ClientDataJSON != session.Challenge {
		return nil, common.ErrInvalidAuthentication
	}
	id, err := b64x.Decode(resp.RawID)
	if err != nil {
		return nil, common.ErrInvalidAuthentication
	}
	return &models.VerifiedRegistration{
		CredentialID: id,
		PublicKey:    []byte("pk-" + resp.RawID),
		DeviceType:   models.DeviceTypeSingle,
		Transports:   resp.Transports,
	}, nil
}

func (rp *fakeRP) FinishLogin(user *models.User, cred *models.Credential, challenge []byte, expires time.Time, resp *models.AuthenticationResponse) (*models.VerifiedAuthentication, error) {
	id, err := b64x.Decode(resp.RawID)
	if err != nil || string(id) != string(cred.CredentialID) || cred.UserID != user.ID {
		return nil, common.ErrInvalidAuthentication
	}
	if resp.ClientDataJSON != b64x.Encode(challenge) || resp.Signature != "valid" {
		return nil, common.ErrInvalidAuthentication
	}
	counter, err := strconv.ParseUint(resp.AuthenticatorData, 10, 32)
	if err != nil {
		return nil, common.ErrInvalidAuthentication
	}
	v := &models.VerifiedAuthentication{
		CredentialID:     cred.CredentialID,
		Counter:          uint32(counter),
		CounterSupported: counter != 0 || cred.Counter != 0,
	}
	if v.CounterSupported && v.Counter <= cred.Counter {
		return nil, common.ErrReplayDetected
	}
	if rp.verified != nil {
		rp.verified()
	}
	return v, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e notify.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) byKind(k notify.Kind) []notify.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []notify.Event
	for _, e := range p.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	db  *sql.DB
	mem *memDB
	rp  *fakeRP
	pub *recordingPublisher
	mr  *miniredis.Miniredis

	packages     *PackageService
	groups       *GroupService
	devices      *DeviceService
	directory    *Directory
	challenges   *ChallengeService
	credentials  *CredentialService
	requests     *RequestService
	quorum       *QuorumEngine
	endorsements *EndorsementService
	users        *UserService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(memTxSchema)
	require.NoError(t, err)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	deriver, err := auth.NewChallengeDeriver([]byte(testSecret))
	require.NoError(t, err)

	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	h := &harness{
		db:  db,
		mem: newMemDB(),
		rp:  &fakeRP{timeout: time.Minute},
		pub: &recordingPublisher{},
		mr:  mr,
	}
	m := &memManager{h.mem}
	cfg := &config.Config{SecretKey: "k", AccessTokenValidityDuration: time.Hour}

	h.packages = NewPackageService(db, m)
	h.groups = NewGroupService(db, m)
	h.devices = NewDeviceService(db, m)
	h.directory = NewDirectory(db, m)
	h.challenges = NewChallengeService(db, m, h.rp, deriver, sessions.NewRedisStore(rdb, time.Minute))
	h.credentials = NewCredentialService(db, m, h.challenges)
	h.requests = NewRequestService(db, m, h.pub, log)
	h.quorum = NewQuorumEngine(db, m, h.requests)
	h.endorsements = NewEndorsementService(db, m, h.challenges, h.quorum, log)
	h.users = NewUserService(db, m, cfg)
	return h
}

// setClock pins the service clock for the rest of the test.
func setClock(t *testing.T, at time.Time) {
	t.Helper()
	orig := now
	t.Cleanup(func() { now = orig })
	now = func() time.Time { return at }
}

func (h *harness) user(t *testing.T, id string) *models.User {
	t.Helper()
	u, err := memUsers{h.mem}.Create(context.Background(), &models.User{ID: id, Email: id + "@example.com", DisplayName: id})
	require.NoError(t, err)
	return u
}

// pkg creates a package owned by owner with the other users as members.
func (h *harness) pkg(t *testing.T, owner string, members ...string) *models.Package {
	t.Helper()
	p, err := h.packages.CreatePackage(context.Background(), owner, "pkg-"+owner)
	require.NoError(t, err)
	for _, m := range members {
		require.NoError(t, memPackages{h.mem}.AddMember(context.Background(), p.ID, m))
	}
	return p
}

func (h *harness) group(t *testing.T, actor string, packageID int64, name string, members ...string) *models.ApprovalGroup {
	t.Helper()
	g, err := h.groups.CreateGroup(context.Background(), actor, packageID, name)
	require.NoError(t, err)
	for _, m := range members {
		_, err := h.groups.AddMember(context.Background(), actor, g.ID, m)
		require.NoError(t, err)
	}
	return g
}

func (h *harness) credential(t *testing.T, userID, id string, counter uint32) *models.Credential {
	t.Helper()
	c := &models.Credential{
		CredentialID: []byte(id),
		UserID:       userID,
		PublicKey:    []byte("pk-" + id),
		Counter:      counter,
		DeviceType:   models.DeviceTypeSingle,
	}
	require.NoError(t, h.credentials.RegisterCredential(context.Background(), c))
	return c
}

func (h *harness) request(t *testing.T, actor string, packageID int64) *models.ApprovalRequest {
	t.Helper()
	r, err := h.requests.Create(context.Background(), actor, packageID, "publish")
	require.NoError(t, err)
	return r
}

func assertion(cred *models.Credential, challenge string, counter uint32) *models.AuthenticationResponse {
	id := b64x.Encode(cred.CredentialID)
	return &models.AuthenticationResponse{
		CredentialID:      id,
		RawID:             id,
		Type:              "public-key",
		ClientDataJSON:    challenge,
		AuthenticatorData: strconv.FormatUint(uint64(counter), 10),
		Signature:         "valid",
	}
}

// endorse runs the whole ceremony for userID with cred.
func (h *harness) endorse(t *testing.T, userID string, requestID int64, cred *models.Credential, counter uint32) (*models.Evaluation, error) {
	t.Helper()
	ctx := context.Background()
	ch, err := h.endorsements.Begin(ctx, userID, requestID)
	if err != nil {
		return nil, err
	}
	return h.endorsements.Endorse(ctx, userID, requestID, ch.IssuedAt, assertion(cred, ch.Challenge, counter))
}
