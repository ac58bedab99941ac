package grpc

import (
	"time"

	"github.com/dmitrijs2005/signoff/internal/b64x"
	"github.com/dmitrijs2005/signoff/internal/server/models"
)

type Empty struct{}

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}

type Package struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Member struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

type Group struct {
	ID        int64     `json:"id"`
	PackageID int64     `json:"package_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Device struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	PushToken string    `json:"push_token"`
	CreatedAt time.Time `json:"created_at"`
}

// Credential omits the public key. CredentialID is base64url.
type Credential struct {
	CredentialID string     `json:"credential_id"`
	DeviceID     *int64     `json:"device_id,omitempty"`
	DeviceType   string     `json:"device_type"`
	BackedUp     bool       `json:"backed_up"`
	Transports   []string   `json:"transports,omitempty"`
	Counter      uint32     `json:"counter"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
}

type Request struct {
	ID        int64      `json:"id"`
	PackageID int64      `json:"package_id"`
	Title     string     `json:"title"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

type Evaluation struct {
	RequestID       int64   `json:"request_id"`
	Status          string  `json:"status"`
	RequiredGroups  []int64 `json:"required_groups"`
	SatisfiedGroups []int64 `json:"satisfied_groups"`
	QuorumMet       bool    `json:"quorum_met"`
	Transitioned    bool    `json:"transitioned"`
}

type CreatePackageRequest struct {
	Name string `json:"name" validate:"required,max=214"`
}

type PackageResponse struct {
	Package Package `json:"package"`
}

type GetPackageRequest struct {
	PackageID int64 `json:"package_id" validate:"gt=0"`
}

type ListPackagesResponse struct {
	Packages []Package `json:"packages"`
}

type AddPackageMemberRequest struct {
	PackageID int64  `json:"package_id" validate:"gt=0"`
	Email     string `json:"email" validate:"required,email"`
}

type RemovePackageMemberRequest struct {
	PackageID int64  `json:"package_id" validate:"gt=0"`
	UserID    string `json:"user_id" validate:"required"`
}

type ListPackageMembersRequest struct {
	PackageID int64 `json:"package_id" validate:"gt=0"`
}

type MemberResponse struct {
	Member Member `json:"member"`
}

type ListMembersResponse struct {
	Members []Member `json:"members"`
}

type CreateGroupRequest struct {
	PackageID int64  `json:"package_id" validate:"gt=0"`
	Name      string `json:"name" validate:"required,max=100"`
}

type GroupResponse struct {
	Group Group `json:"group"`
}

type ListGroupsRequest struct {
	PackageID int64 `json:"package_id" validate:"gt=0"`
}

type ListGroupsResponse struct {
	Groups []Group `json:"groups"`
}

// GroupMemberRequest is used by both AddGroupMember and RemoveGroupMember.
type GroupMemberRequest struct {
	GroupID int64  `json:"group_id" validate:"gt=0"`
	UserID  string `json:"user_id" validate:"required"`
}

type ListGroupMembersRequest struct {
	GroupID int64 `json:"group_id" validate:"gt=0"`
}

type RegisterDeviceRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	PushToken string `json:"push_token" validate:"required"`
}

type DeviceResponse struct {
	Device Device `json:"device"`
}

type ListDevicesResponse struct {
	Devices []Device `json:"devices"`
}

type BeginCredentialRegistrationRequest struct {
	DeviceID *int64 `json:"device_id,omitempty" validate:"omitempty,gt=0"`
}

type FinishCredentialRegistrationRequest struct {
	Challenge string                      `json:"challenge" validate:"required"`
	Response  models.RegistrationResponse `json:"response"`
}

type CredentialResponse struct {
	Credential Credential `json:"credential"`
}

type ListCredentialsResponse struct {
	Credentials []Credential `json:"credentials"`
}

type CreateRequestRequest struct {
	PackageID int64  `json:"package_id" validate:"gt=0"`
	Title     string `json:"title" validate:"required,max=500"`
}

type RequestIDRequest struct {
	RequestID int64 `json:"request_id" validate:"gt=0"`
}

type RequestResponse struct {
	Request Request `json:"request"`
}

type ListRequestsRequest struct {
	PackageID int64 `json:"package_id" validate:"gt=0"`
}

type ListRequestsResponse struct {
	Requests []Request `json:"requests"`
}

type EndorseRequest struct {
	RequestID int64                         `json:"request_id" validate:"gt=0"`
	IssuedAt  time.Time                     `json:"issued_at" validate:"required"`
	Response  models.AuthenticationResponse `json:"response"`
}

type EndorseResponse struct {
	Evaluation Evaluation `json:"evaluation"`
}

type ReceiptURLResponse struct {
	URL string `json:"url"`
}

func toPackage(p *models.Package) Package {
	return Package{ID: p.ID, Name: p.Name, OwnerID: p.OwnerID, CreatedAt: p.CreatedAt}
}

func toGroup(g *models.ApprovalGroup) Group {
	return Group{ID: g.ID, PackageID: g.PackageID, Name: g.Name, CreatedAt: g.CreatedAt}
}

func toDevice(d *models.Device) Device {
	return Device{ID: d.ID, Name: d.Name, PushToken: d.PushToken, CreatedAt: d.CreatedAt}
}

func toCredential(c *models.Credential) Credential {
	return Credential{
		CredentialID: b64x.Encode(c.CredentialID),
		DeviceID:     c.DeviceID,
		DeviceType:   c.DeviceType,
		BackedUp:     c.BackedUp,
		Transports:   c.Transports,
		Counter:      c.Counter,
		CreatedAt:    c.CreatedAt,
		LastUsedAt:   c.LastUsedAt,
	}
}

func toRequest(r *models.ApprovalRequest) Request {
	return Request{
		ID:        r.ID,
		PackageID: r.PackageID,
		Title:     r.Title,
		Status:    string(r.Status),
		CreatedAt: r.CreatedAt,
		DecidedAt: r.DecidedAt,
	}
}

func toEvaluation(e *models.Evaluation) Evaluation {
	return Evaluation{
		RequestID:       e.RequestID,
		Status:          string(e.Status),
		RequiredGroups:  e.RequiredGroups,
		SatisfiedGroups: e.SatisfiedGroups,
		QuorumMet:       e.QuorumMet,
		Transitioned:    e.Transitioned,
	}
}
