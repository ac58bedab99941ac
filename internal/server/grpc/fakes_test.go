package grpc

import (
	"context"
	"net"
	"slices"
	"testing"
	"time"

	"github.com/dmitrijs2005/signoff/internal/common"
	"github.com/dmitrijs2005/signoff/internal/logging"
	"github.com/dmitrijs2005/signoff/internal/server/auth"
	"github.com/dmitrijs2005/signoff/internal/server/models"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
)

const testSecret = "test-secret"

type nopLogger struct{}

func (n nopLogger) Debug(context.Context, string, ...any) {}
func (n nopLogger) Info(context.Context, string, ...any)  {}
func (n nopLogger) Warn(context.Context, string, ...any)  {}
func (n nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger            { return n }

// fakePackages knows package 1, "core", with owner alice and member bob.
type fakePackages struct {
	names   map[int64]string
	members map[int64][]string
}

func newFakePackages() *fakePackages {
	return &fakePackages{
		names:   map[int64]string{1: "core"},
		members: map[int64][]string{1: {"alice", "bob"}},
	}
}

func (f *fakePackages) RequireMember(_ context.Context, packageID int64, userID string) error {
	if !slices.Contains(f.members[packageID], userID) {
		return common.ErrorForbidden
	}
	return nil
}

func (f *fakePackages) CreatePackage(_ context.Context, ownerID, name string) (*models.Package, error) {
	id := int64(len(f.members) + 1)
	f.names[id] = name
	f.members[id] = []string{ownerID}
	return &models.Package{ID: id, Name: name, OwnerID: ownerID}, nil
}

func (f *fakePackages) ListPackages(_ context.Context, userID string) ([]*models.Package, error) {
	var out []*models.Package
	for id := int64(1); id <= int64(len(f.members)); id++ {
		if slices.Contains(f.members[id], userID) {
			out = append(out, &models.Package{ID: id, Name: f.names[id], OwnerID: f.members[id][0]})
		}
	}
	return out, nil
}

func (f *fakePackages) GetPackage(ctx context.Context, actingUserID string, packageID int64) (*models.Package, error) {
	if err := f.RequireMember(ctx, packageID, actingUserID); err != nil {
		return nil, err
	}
	return &models.Package{ID: packageID, Name: f.names[packageID], OwnerID: f.members[packageID][0]}, nil
}

func (f *fakePackages) AddMemberByEmail(ctx context.Context, actingUserID string, packageID int64, email string) (*models.User, error) {
	if err := f.RequireMember(ctx, packageID, actingUserID); err != nil {
		return nil, err
	}
	if email == "ghost@example.com" {
		return nil, common.ErrorNotFound
	}
	u := &models.User{ID: "u-" + email, Email: email}
	f.members[packageID] = append(f.members[packageID], u.ID)
	return u, nil
}

func (f *fakePackages) RemoveMember(ctx context.Context, actingUserID string, packageID int64, userID string) error {
	if err := f.RequireMember(ctx, packageID, actingUserID); err != nil {
		return err
	}
	f.members[packageID] = slices.DeleteFunc(f.members[packageID], func(id string) bool { return id == userID })
	return nil
}

func (f *fakePackages) ListMembers(ctx context.Context, actingUserID string, packageID int64) ([]*models.PackageMember, error) {
	if err := f.RequireMember(ctx, packageID, actingUserID); err != nil {
		return nil, err
	}
	var out []*models.PackageMember
	for _, id := range f.members[packageID] {
		out = append(out, &models.PackageMember{PackageID: packageID, UserID: id, Email: id + "@example.com"})
	}
	return out, nil
}

// fakeGroups knows group 10 in package 1 with member bob.
type fakeGroups struct {
	groups  map[int64]*models.ApprovalGroup
	members map[int64][]string
}

func newFakeGroups() *fakeGroups {
	return &fakeGroups{
		groups:  map[int64]*models.ApprovalGroup{10: {ID: 10, PackageID: 1, Name: "maintainers"}},
		members: map[int64][]string{10: {"bob"}},
	}
}

func (f *fakeGroups) CreateGroup(_ context.Context, actingUserID string, packageID int64, name string) (*models.ApprovalGroup, error) {
	if packageID != 1 || actingUserID == "mallory" {
		return nil, common.ErrorForbidden
	}
	g := &models.ApprovalGroup{ID: int64(10 + len(f.groups)), PackageID: packageID, Name: name}
	f.groups[g.ID] = g
	return g, nil
}

func (f *fakeGroups) AddMember(_ context.Context, _ string, groupID int64, userID string) (*models.GroupMember, error) {
	g, ok := f.groups[groupID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	for _, list := range f.members {
		if slices.Contains(list, userID) {
			return nil, common.ErrorConflict
		}
	}
	f.members[groupID] = append(f.members[groupID], userID)
	return &models.GroupMember{GroupID: groupID, PackageID: g.PackageID, UserID: userID}, nil
}

func (f *fakeGroups) RemoveMember(_ context.Context, _ string, groupID int64, userID string) error {
	f.members[groupID] = slices.DeleteFunc(f.members[groupID], func(id string) bool { return id == userID })
	return nil
}

func (f *fakeGroups) GetGroup(_ context.Context, groupID int64) (*models.ApprovalGroup, error) {
	g, ok := f.groups[groupID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return g, nil
}

func (f *fakeGroups) ListGroups(_ context.Context, packageID int64) ([]*models.ApprovalGroup, error) {
	var out []*models.ApprovalGroup
	for _, g := range f.groups {
		if g.PackageID == packageID {
			out = append(out, g)
		}
	}
	slices.SortFunc(out, func(a, b *models.ApprovalGroup) int { return int(a.ID - b.ID) })
	return out, nil
}

func (f *fakeGroups) ListMembers(_ context.Context, groupID int64) ([]*models.GroupMember, error) {
	var out []*models.GroupMember
	for _, id := range f.members[groupID] {
		out = append(out, &models.GroupMember{GroupID: groupID, UserID: id})
	}
	return out, nil
}

type fakeDevices struct {
	devices []*models.Device
}

func (f *fakeDevices) RegisterDevice(_ context.Context, userID, name, pushToken string) (*models.Device, error) {
	d := &models.Device{ID: int64(len(f.devices) + 1), UserID: userID, Name: name, PushToken: pushToken}
	f.devices = append(f.devices, d)
	return d, nil
}

func (f *fakeDevices) ListDevices(_ context.Context, userID string) ([]*models.Device, error) {
	var out []*models.Device
	for _, d := range f.devices {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

// fakeCredentials accepts a single registration challenge "reg-1".
type fakeCredentials struct {
	deviceID *int64
	creds    []*models.Credential
}

func (f *fakeCredentials) BeginRegistration(_ context.Context, userID string, deviceID *int64) (*models.RegistrationChallenge, error) {
	f.deviceID = deviceID
	return &models.RegistrationChallenge{Challenge: "reg-1", RPID: "signoff.test", UserID: userID, Timeout: time.Minute}, nil
}

func (f *fakeCredentials) FinishRegistration(_ context.Context, userID, challenge string, resp *models.RegistrationResponse) (*models.Credential, error) {
	if challenge != "reg-1" {
		return nil, common.ErrChallengeExpired
	}
	c := &models.Credential{CredentialID: []byte(resp.RawID), UserID: userID, DeviceID: f.deviceID, Transports: resp.Transports}
	f.creds = append(f.creds, c)
	return c, nil
}

func (f *fakeCredentials) ListByUser(_ context.Context, userID string) ([]*models.Credential, error) {
	var out []*models.Credential
	for _, c := range f.creds {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeRequests struct {
	requests map[int64]*models.ApprovalRequest
}

func newFakeRequests() *fakeRequests {
	return &fakeRequests{requests: map[int64]*models.ApprovalRequest{
		100: {ID: 100, PackageID: 1, Title: "publish 1.0.0", Status: models.StatusPending},
	}}
}

func (f *fakeRequests) Create(_ context.Context, actingUserID string, packageID int64, title string) (*models.ApprovalRequest, error) {
	if packageID != 1 || actingUserID == "mallory" {
		return nil, common.ErrorForbidden
	}
	r := &models.ApprovalRequest{ID: int64(100 + len(f.requests)), PackageID: packageID, Title: title, Status: models.StatusPending}
	f.requests[r.ID] = r
	return r, nil
}

func (f *fakeRequests) Get(_ context.Context, requestID int64) (*models.ApprovalRequest, error) {
	r, ok := f.requests[requestID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return r, nil
}

func (f *fakeRequests) ListByPackage(_ context.Context, packageID int64) ([]*models.ApprovalRequest, error) {
	var out []*models.ApprovalRequest
	for _, r := range f.requests {
		if r.PackageID == packageID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRequests) Reject(ctx context.Context, _ string, requestID int64) (*models.ApprovalRequest, error) {
	r, err := f.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.Status.IsTerminal() {
		return nil, common.ErrRequestClosed
	}
	r.Status = models.StatusRejected
	return r, nil
}

type fakeEndorser struct {
	err        error
	evaluation *models.Evaluation
	issuedAt   time.Time
	resp       *models.AuthenticationResponse
}

func (f *fakeEndorser) Begin(_ context.Context, _ string, requestID int64) (*models.AuthenticationChallenge, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.AuthenticationChallenge{RequestID: requestID, Challenge: "auth-1", IssuedAt: time.UnixMilli(1_700_000_000_000).UTC()}, nil
}

func (f *fakeEndorser) Endorse(_ context.Context, _ string, _ int64, issuedAt time.Time, resp *models.AuthenticationResponse) (*models.Evaluation, error) {
	f.issuedAt, f.resp = issuedAt, resp
	if f.err != nil {
		return nil, f.err
	}
	return f.evaluation, nil
}

type fakeReceipts struct {
	url string
	err error
}

func (f *fakeReceipts) GetReceiptURL(context.Context, string, int64) (string, error) {
	return f.url, f.err
}

type fixture struct {
	conn     *grpc.ClientConn
	packages *fakePackages
	groups   *fakeGroups
	devices  *fakeDevices
	creds    *fakeCredentials
	requests *fakeRequests
	endorser *fakeEndorser
	receipts *fakeReceipts
}

// startServer serves a GRPCServer over bufconn for the lifetime of the test.
func startServer(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		packages: newFakePackages(),
		groups:   newFakeGroups(),
		devices:  &fakeDevices{},
		creds:    &fakeCredentials{},
		requests: newFakeRequests(),
		endorser: &fakeEndorser{},
		receipts: &fakeReceipts{url: "https://receipts.example/1/100"},
	}

	s, err := NewGRPCServer("bufconn", nopLogger{}, testSecret, Backends{
		Packages:     f.packages,
		Groups:       f.groups,
		Devices:      f.devices,
		Credentials:  f.creds,
		Requests:     f.requests,
		Endorsements: f.endorser,
		Receipts:     f.receipts,
	})
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec{})),
	)
	require.NoError(t, err)
	f.conn = conn

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		<-done
	})
	return f
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.GenerateToken(auth.Principal{UserID: userID, Email: userID + "@example.com"}, []byte(testSecret), time.Hour)
	require.NoError(t, err)
	return token
}

func as(t *testing.T, userID string) context.Context {
	t.Helper()
	return metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, tokenFor(t, userID))
}

func invoke[Resp any](ctx context.Context, conn *grpc.ClientConn, method string, req any, opts ...grpc.CallOption) (*Resp, error) {
	resp := new(Resp)
	if err := conn.Invoke(ctx, FullMethod(method), req, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}
