// Package grpc exposes the signoff services over gRPC. Messages are plain Go
// structs carried by a JSON codec; there is no protoc step.
package grpc

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/dmitrijs2005/signoff/internal/logging"
	"github.com/dmitrijs2005/signoff/internal/server/models"
	"github.com/dmitrijs2005/signoff/internal/validx"
	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc"
)

type PackageManager interface {
	CreatePackage(ctx context.Context, ownerID, name string) (*models.Package, error)
	ListPackages(ctx context.Context, userID string) ([]*models.Package, error)
	GetPackage(ctx context.Context, actingUserID string, packageID int64) (*models.Package, error)
	AddMemberByEmail(ctx context.Context, actingUserID string, packageID int64, email string) (*models.User, error)
	RemoveMember(ctx context.Context, actingUserID string, packageID int64, userID string) error
	ListMembers(ctx context.Context, actingUserID string, packageID int64) ([]*models.PackageMember, error)
	RequireMember(ctx context.Context, packageID int64, userID string) error
}

type GroupManager interface {
	CreateGroup(ctx context.Context, actingUserID string, packageID int64, name string) (*models.ApprovalGroup, error)
	AddMember(ctx context.Context, actingUserID string, groupID int64, userID string) (*models.GroupMember, error)
	RemoveMember(ctx context.Context, actingUserID string, groupID int64, userID string) error
	GetGroup(ctx context.Context, groupID int64) (*models.ApprovalGroup, error)
	ListGroups(ctx context.Context, packageID int64) ([]*models.ApprovalGroup, error)
	ListMembers(ctx context.Context, groupID int64) ([]*models.GroupMember, error)
}

type DeviceRegistry interface {
	RegisterDevice(ctx context.Context, userID, name, pushToken string) (*models.Device, error)
	ListDevices(ctx context.Context, userID string) ([]*models.Device, error)
}

type CredentialRegistry interface {
	BeginRegistration(ctx context.Context, userID string, deviceID *int64) (*models.RegistrationChallenge, error)
	FinishRegistration(ctx context.Context, userID, challenge string, resp *models.RegistrationResponse) (*models.Credential, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Credential, error)
}

type RequestLifecycle interface {
	Create(ctx context.Context, actingUserID string, packageID int64, title string) (*models.ApprovalRequest, error)
	Get(ctx context.Context, requestID int64) (*models.ApprovalRequest, error)
	ListByPackage(ctx context.Context, packageID int64) ([]*models.ApprovalRequest, error)
	Reject(ctx context.Context, actingUserID string, requestID int64) (*models.ApprovalRequest, error)
}

type Endorser interface {
	Begin(ctx context.Context, userID string, requestID int64) (*models.AuthenticationChallenge, error)
	Endorse(ctx context.Context, userID string, requestID int64, issuedAt time.Time, resp *models.AuthenticationResponse) (*models.Evaluation, error)
}

type ReceiptLinker interface {
	GetReceiptURL(ctx context.Context, actingUserID string, requestID int64) (string, error)
}

// Backends are the services the RPCs delegate to.
type Backends struct {
	Packages     PackageManager
	Groups       GroupManager
	Devices      DeviceRegistry
	Credentials  CredentialRegistry
	Requests     RequestLifecycle
	Endorsements Endorser
	Receipts     ReceiptLinker
}

type GRPCServer struct {
	address   string
	logger    logging.Logger
	jwtSecret []byte
	validate  *validator.Validate
	Backends
}

func NewGRPCServer(address string, l logging.Logger, secretKey string, b Backends) (*GRPCServer, error) {
	if secretKey == "" {
		return nil, errors.New("secret key is required")
	}
	return &GRPCServer{
		address:   address,
		logger:    l.With("module", "grpc_server"),
		jwtSecret: []byte(secretKey),
		validate:  validx.New(),
		Backends:  b,
	}, nil
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ForceServerCodec(Codec{}),
		grpc.ChainUnaryInterceptor(
			s.requestIDInterceptor,
			s.accessTokenInterceptor,
			s.validationInterceptor,
		),
	)
	srv.RegisterService(&serviceDesc, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
