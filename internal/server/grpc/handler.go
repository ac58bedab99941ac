package grpc

import (
	"context"

	"github.com/dmitrijs2005/signoff/internal/server/auth"
	"github.com/dmitrijs2005/signoff/internal/server/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// caller returns the user id the access token interceptor put in ctx.
func caller(ctx context.Context) (string, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "unauthenticated")
	}
	return p.UserID, nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *PingRequest) (*PingResponse, error) {
	return &PingResponse{Status: "OK"}, nil
}

func (s *GRPCServer) CreatePackage(ctx context.Context, req *CreatePackageRequest) (*PackageResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	p, err := s.Packages.CreatePackage(ctx, userID, req.Name)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "Package created", "package_id", p.ID, "owner", userID)
	return &PackageResponse{Package: toPackage(p)}, nil
}

func (s *GRPCServer) ListPackages(ctx context.Context, req *Empty) (*ListPackagesResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	list, err := s.Packages.ListPackages(ctx, userID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	resp := &ListPackagesResponse{Packages: make([]Package, 0, len(list))}
	for _, p := range list {
		resp.Packages = append(resp.Packages, toPackage(p))
	}
	return resp, nil
}

func (s *GRPCServer) GetPackage(ctx context.Context, req *GetPackageRequest) (*PackageResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	p, err := s.Packages.GetPackage(ctx, userID, req.PackageID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &PackageResponse{Package: toPackage(p)}, nil
}

func (s *GRPCServer) AddPackageMember(ctx context.Context, req *AddPackageMemberRequest) (*MemberResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	u, err := s.Packages.AddMemberByEmail(ctx, userID, req.PackageID, req.Email)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return &MemberResponse{Member: Member{UserID: u.ID, Email: u.Email, DisplayName: u.DisplayName}}, nil
}

func (s *GRPCServer) RemovePackageMember(ctx context.Context, req *RemovePackageMemberRequest) (*Empty, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.Packages.RemoveMember(ctx, userID, req.PackageID, req.UserID); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *GRPCServer) ListPackageMembers(ctx context.Context, req *ListPackageMembersRequest) (*ListMembersResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	list, err := s.Packages.ListMembers(ctx, userID, req.PackageID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	resp := &ListMembersResponse{Members: make([]Member, 0, len(list))}
	for _, m := range list {
		resp.Members = append(resp.Members, Member{UserID: m.UserID, Email: m.Email, DisplayName: m.DisplayName})
	}
	return resp, nil
}

func (s *GRPCServer) CreateGroup(ctx context.Context, req *CreateGroupRequest) (*GroupResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	g, err := s.Groups.CreateGroup(ctx, userID, req.PackageID, req.Name)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &GroupResponse{Group: toGroup(g)}, nil
}

func (s *GRPCServer) ListGroups(ctx context.Context, req *ListGroupsRequest) (*ListGroupsResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Packages.RequireMember(ctx, req.PackageID, userID); err != nil {
		return nil, s.toStatus(ctx, err)
	}

	list, err := s.Groups.ListGroups(ctx, req.PackageID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	resp := &ListGroupsResponse{Groups: make([]Group, 0, len(list))}
	for _, g := range list {
		resp.Groups = append(resp.Groups, toGroup(g))
	}
	return resp, nil
}

func (s *GRPCServer) AddGroupMember(ctx context.Context, req *GroupMemberRequest) (*Empty, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := s.Groups.AddMember(ctx, userID, req.GroupID, req.UserID); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *GRPCServer) RemoveGroupMember(ctx context.Context, req *GroupMemberRequest) (*Empty, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.Groups.RemoveMember(ctx, userID, req.GroupID, req.UserID); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *GRPCServer) ListGroupMembers(ctx context.Context, req *ListGroupMembersRequest) (*ListMembersResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	g, err := s.Groups.GetGroup(ctx, req.GroupID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	if err := s.Packages.RequireMember(ctx, g.PackageID, userID); err != nil {
		return nil, s.toStatus(ctx, err)
	}

	list, err := s.Groups.ListMembers(ctx, g.ID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	resp := &ListMembersResponse{Members: make([]Member, 0, len(list))}
	for _, m := range list {
		resp.Members = append(resp.Members, Member{UserID: m.UserID, Email: m.Email, DisplayName: m.DisplayName})
	}
	return resp, nil
}

func (s *GRPCServer) RegisterDevice(ctx context.Context, req *RegisterDeviceRequest) (*DeviceResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	d, err := s.Devices.RegisterDevice(ctx, userID, req.Name, req.PushToken)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &DeviceResponse{Device: toDevice(d)}, nil
}

func (s *GRPCServer) ListDevices(ctx context.Context, req *Empty) (*ListDevicesResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	list, err := s.Devices.ListDevices(ctx, userID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	resp := &ListDevicesResponse{Devices: make([]Device, 0, len(list))}
	for _, d := range list {
		resp.Devices = append(resp.Devices, toDevice(d))
	}
	return resp, nil
}

func (s *GRPCServer) BeginCredentialRegistration(ctx context.Context, req *BeginCredentialRegistrationRequest) (*models.RegistrationChallenge, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	ch, err := s.Credentials.BeginRegistration(ctx, userID, req.DeviceID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return ch, nil
}

func (s *GRPCServer) FinishCredentialRegistration(ctx context.Context, req *FinishCredentialRegistrationRequest) (*CredentialResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	c, err := s.Credentials.FinishRegistration(ctx, userID, req.Challenge, &req.Response)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "Credential registered", "user_id", userID)
	return &CredentialResponse{Credential: toCredential(c)}, nil
}

func (s *GRPCServer) ListCredentials(ctx context.Context, req *Empty) (*ListCredentialsResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	list, err := s.Credentials.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	resp := &ListCredentialsResponse{Credentials: make([]Credential, 0, len(list))}
	for _, c := range list {
		resp.Credentials = append(resp.Credentials, toCredential(c))
	}
	return resp, nil
}

func (s *GRPCServer) CreateRequest(ctx context.Context, req *CreateRequestRequest) (*RequestResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	r, err := s.Requests.Create(ctx, userID, req.PackageID, req.Title)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &RequestResponse{Request: toRequest(r)}, nil
}

func (s *GRPCServer) GetRequest(ctx context.Context, req *RequestIDRequest) (*RequestResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	r, err := s.Requests.Get(ctx, req.RequestID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	if err := s.Packages.RequireMember(ctx, r.PackageID, userID); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &RequestResponse{Request: toRequest(r)}, nil
}

func (s *GRPCServer) ListRequests(ctx context.Context, req *ListRequestsRequest) (*ListRequestsResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Packages.RequireMember(ctx, req.PackageID, userID); err != nil {
		return nil, s.toStatus(ctx, err)
	}

	list, err := s.Requests.ListByPackage(ctx, req.PackageID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	resp := &ListRequestsResponse{Requests: make([]Request, 0, len(list))}
	for _, r := range list {
		resp.Requests = append(resp.Requests, toRequest(r))
	}
	return resp, nil
}

func (s *GRPCServer) RejectRequest(ctx context.Context, req *RequestIDRequest) (*RequestResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	r, err := s.Requests.Reject(ctx, userID, req.RequestID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &RequestResponse{Request: toRequest(r)}, nil
}

func (s *GRPCServer) BeginEndorsement(ctx context.Context, req *RequestIDRequest) (*models.AuthenticationChallenge, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	ch, err := s.Endorsements.Begin(ctx, userID, req.RequestID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return ch, nil
}

func (s *GRPCServer) Endorse(ctx context.Context, req *EndorseRequest) (*EndorseResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	ev, err := s.Endorsements.Endorse(ctx, userID, req.RequestID, req.IssuedAt, &req.Response)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &EndorseResponse{Evaluation: toEvaluation(ev)}, nil
}

func (s *GRPCServer) GetReceiptURL(ctx context.Context, req *RequestIDRequest) (*ReceiptURLResponse, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	url, err := s.Receipts.GetReceiptURL(ctx, userID, req.RequestID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &ReceiptURLResponse{URL: url}, nil
}
