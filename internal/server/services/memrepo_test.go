package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/signoff/internal/b64x"
	"github.com/dmitrijs2005/signoff/internal/common"
	"github.com/dmitrijs2005/signoff/internal/dbx"
	"github.com/dmitrijs2005/signoff/internal/server/models"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/approvals"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/devices"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/groups"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/packages"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/requests"
	"github.com/dmitrijs2005/signoff/internal/server/repositories/users"
)

// memTxSchema holds one marker row per transaction that wrote through the
// in-memory repositories. The row survives only if the transaction commits.
const memTxSchema = `CREATE TABLE mem_tx (id INTEGER PRIMARY KEY)`

// memDB is an in-memory stand-in for the schema, including its unique and
// conditional-update constraints. Repositories bound to a *sql.Tx journal
// their writes; the journal is replayed backwards once the transaction turns
// out to have rolled back.
type memDB struct {
	*memStore
	tx *sql.Tx
}

type memStore struct {
	mu sync.Mutex

	txSeq int64
	txs   map[*sql.Tx]*memTx

	nextID       int64
	users        map[string]models.User
	devices      map[int64]models.Device
	creds        map[string]models.Credential
	packages     map[int64]models.Package
	pkgMembers   map[int64]map[string]time.Time
	groups       map[int64]models.ApprovalGroup
	groupMembers []models.GroupMember
	requests     map[int64]models.ApprovalRequest
	approvals    []models.Approval
}

func newMemDB() *memDB {
	return &memDB{memStore: &memStore{
		txs:        map[*sql.Tx]*memTx{},
		users:      map[string]models.User{},
		devices:    map[int64]models.Device{},
		creds:      map[string]models.Credential{},
		packages:   map[int64]models.Package{},
		pkgMembers: map[int64]map[string]time.Time{},
		groups:     map[int64]models.ApprovalGroup{},
		requests:   map[int64]models.ApprovalRequest{},
	}}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

// memTx is the undo log of one transaction, identified by its marker row.
type memTx struct {
	seq  int64
	undo []func()
}

// bind returns the view repositories use for db. Binding to the pool first
// settles finished transactions.
func (m *memDB) bind(db dbx.DBTX) *memDB {
	if tx, ok := db.(*sql.Tx); ok {
		return &memDB{memStore: m.memStore, tx: tx}
	}
	m.settle(db)
	return m
}

// journal records how to revert a write. Callers hold mu.
func (m *memDB) journal(undo func()) {
	if m.tx == nil {
		return
	}
	t, ok := m.txs[m.tx]
	if !ok {
		m.txSeq++
		t = &memTx{seq: m.txSeq}
		if _, err := m.tx.ExecContext(context.Background(), `INSERT INTO mem_tx (id) VALUES (?)`, t.seq); err != nil {
			return
		}
		m.txs[m.tx] = t
	}
	t.undo = append(t.undo, undo)
}

// settle reverts the writes of every transaction whose marker row is gone.
// The marker query waits for transactions still open, since the pool has a
// single connection; nothing may call it from inside one of them.
func (m *memDB) settle(db dbx.DBTX) {
	if db == nil {
		return
	}
	m.mu.Lock()
	pending := make(map[*sql.Tx]*memTx, len(m.txs))
	for tx, t := range m.txs {
		pending[tx] = t
	}
	m.mu.Unlock()

	for tx, t := range pending {
		var committed bool
		err := db.QueryRowContext(context.Background(), `SELECT EXISTS (SELECT 1 FROM mem_tx WHERE id = ?)`, t.seq).Scan(&committed)
		if err != nil {
			continue
		}
		m.mu.Lock()
		if m.txs[tx] == t {
			delete(m.txs, tx)
			if !committed {
				for i := len(t.undo) - 1; i >= 0; i-- {
					t.undo[i]()
				}
			}
		}
		m.mu.Unlock()
	}
}

type memManager struct{ m *memDB }

func (r *memManager) RunMigrations(context.Context, *sql.DB) error   { return nil }
func (r *memManager) MigrationStatus(context.Context, *sql.DB) error { return nil }

func (r *memManager) Users(db dbx.DBTX) users.Repository {
	return memUsers{r.m.bind(db)}
}

func (r *memManager) Devices(db dbx.DBTX) devices.Repository {
	return memDevices{r.m.bind(db)}
}

func (r *memManager) Credentials(db dbx.DBTX) credentials.Repository {
	return memCredentials{r.m.bind(db)}
}

func (r *memManager) Packages(db dbx.DBTX) packages.Repository {
	return memPackages{r.m.bind(db)}
}

func (r *memManager) Groups(db dbx.DBTX) groups.Repository {
	return memGroups{r.m.bind(db)}
}

func (r *memManager) Requests(db dbx.DBTX) requests.Repository {
	return memRequests{r.m.bind(db)}
}

func (r *memManager) Approvals(db dbx.DBTX) approvals.Repository {
	return memApprovals{r.m.bind(db)}
}

// --- users ---

type memUsers struct{ m *memDB }

func (r memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.users[u.ID]; ok {
		return nil, common.ErrorConflict
	}
	for _, x := range r.m.users {
		if u.Email != "" && x.Email == u.Email {
			return nil, common.ErrorConflict
		}
	}
	u.CreatedAt = time.Now()
	r.m.users[u.ID] = *u
	r.m.journal(func() { delete(r.m.users, u.ID) })
	return u, nil
}

func (r memUsers) Get(_ context.Context, id string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, common.ErrorNotFound
}

// --- devices ---

type memDevices struct{ m *memDB }

func (r memDevices) Upsert(_ context.Context, d *models.Device) (*models.Device, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.users[d.UserID]; !ok {
		return nil, common.ErrorNotFound
	}
	for id, x := range r.m.devices {
		if x.PushToken == d.PushToken {
			if x.UserID != d.UserID {
				return nil, common.ErrorConflict
			}
			prev := r.m.devices[id]
			x.Name = d.Name
			r.m.devices[id] = x
			r.m.journal(func() { r.m.devices[id] = prev })
			return &x, nil
		}
	}
	d.ID = r.m.id()
	d.CreatedAt = time.Now()
	r.m.devices[d.ID] = *d
	id := d.ID
	r.m.journal(func() { delete(r.m.devices, id) })
	return d, nil
}

func (r memDevices) Get(_ context.Context, id int64) (*models.Device, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d, ok := r.m.devices[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &d, nil
}

func (r memDevices) ListByUser(_ context.Context, userID string) ([]*models.Device, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Device
	for _, d := range r.m.devices {
		if d.UserID == userID {
			d := d
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- credentials ---

type memCredentials struct{ m *memDB }

func (r memCredentials) Create(_ context.Context, c *models.Credential) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	key := b64x.Encode(c.CredentialID)
	if _, ok := r.m.creds[key]; ok {
		return common.ErrorConflict
	}
	if _, ok := r.m.users[c.UserID]; !ok {
		return common.ErrorNotFound
	}
	if c.DeviceID != nil {
		if _, ok := r.m.devices[*c.DeviceID]; !ok {
			return common.ErrorNotFound
		}
	}
	// strictly increasing creation times keep ListBy* ordering stable
	c.CreatedAt = time.Unix(0, r.m.id())
	r.m.creds[key] = *c
	r.m.journal(func() { delete(r.m.creds, key) })
	return nil
}

func (r memCredentials) FindByCredentialID(_ context.Context, id []byte) (*models.Credential, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.creds[b64x.Encode(id)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &c, nil
}

func (r memCredentials) list(match func(models.Credential) bool) []*models.Credential {
	var out []*models.Credential
	for _, c := range r.m.creds {
		if match(c) {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r memCredentials) ListByUser(_ context.Context, userID string) ([]*models.Credential, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.list(func(c models.Credential) bool { return c.UserID == userID }), nil
}

func (r memCredentials) ListByUserAndDevice(_ context.Context, userID string, deviceID int64) ([]*models.Credential, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.list(func(c models.Credential) bool {
		return c.UserID == userID && c.DeviceID != nil && *c.DeviceID == deviceID
	}), nil
}

func (r memCredentials) BumpCounter(_ context.Context, id []byte, counter uint32) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	key := b64x.Encode(id)
	c, ok := r.m.creds[key]
	if !ok {
		return common.ErrorNotFound
	}
	if counter <= c.Counter {
		return common.ErrReplayDetected
	}
	prev := c.Counter
	c.Counter = counter
	r.m.creds[key] = c
	r.m.journal(func() {
		c := r.m.creds[key]
		c.Counter = prev
		r.m.creds[key] = c
	})
	return nil
}

// --- packages ---

type memPackages struct{ m *memDB }

func (r memPackages) Create(_ context.Context, p *models.Package) (*models.Package, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.users[p.OwnerID]; !ok {
		return nil, common.ErrorNotFound
	}
	p.ID = r.m.id()
	p.CreatedAt = time.Now()
	r.m.packages[p.ID] = *p
	r.m.pkgMembers[p.ID] = map[string]time.Time{}
	id := p.ID
	r.m.journal(func() {
		delete(r.m.packages, id)
		delete(r.m.pkgMembers, id)
	})
	return p, nil
}

func (r memPackages) Get(_ context.Context, id int64) (*models.Package, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.packages[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &p, nil
}

func (r memPackages) Exists(_ context.Context, id int64) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	_, ok := r.m.packages[id]
	return ok, nil
}

func (r memPackages) ListForUser(_ context.Context, userID string) ([]*models.Package, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Package
	for id, members := range r.m.pkgMembers {
		if _, ok := members[userID]; ok {
			p := r.m.packages[id]
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memPackages) AddMember(_ context.Context, packageID int64, userID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	members, ok := r.m.pkgMembers[packageID]
	if !ok {
		return common.ErrorNotFound
	}
	if _, ok := r.m.users[userID]; !ok {
		return common.ErrorNotFound
	}
	if _, ok := members[userID]; ok {
		return common.ErrorConflict
	}
	members[userID] = time.Now()
	r.m.journal(func() { delete(r.m.pkgMembers[packageID], userID) })
	return nil
}

func (r memPackages) RemoveMember(_ context.Context, packageID int64, userID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	at, ok := r.m.pkgMembers[packageID][userID]
	if !ok {
		return nil
	}
	delete(r.m.pkgMembers[packageID], userID)
	r.m.journal(func() {
		if members, ok := r.m.pkgMembers[packageID]; ok {
			members[userID] = at
		}
	})
	return nil
}

func (r memPackages) IsMember(_ context.Context, packageID int64, userID string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	_, ok := r.m.pkgMembers[packageID][userID]
	return ok, nil
}

func (r memPackages) ListMembers(_ context.Context, packageID int64) ([]*models.PackageMember, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.PackageMember
	for userID, at := range r.m.pkgMembers[packageID] {
		u := r.m.users[userID]
		out = append(out, &models.PackageMember{PackageID: packageID, UserID: userID, Email: u.Email, DisplayName: u.DisplayName, CreatedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// --- groups ---

type memGroups struct{ m *memDB }

func (r memGroups) Create(_ context.Context, g *models.ApprovalGroup, actingUserID string) (*models.ApprovalGroup, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.pkgMembers[g.PackageID][actingUserID]; !ok {
		return nil, common.ErrorForbidden
	}
	g.ID = r.m.id()
	g.CreatedAt = time.Now()
	r.m.groups[g.ID] = *g
	id := g.ID
	r.m.journal(func() { delete(r.m.groups, id) })
	return g, nil
}

func (r memGroups) Get(_ context.Context, id int64) (*models.ApprovalGroup, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	g, ok := r.m.groups[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &g, nil
}

func (r memGroups) ListByPackage(_ context.Context, packageID int64) ([]*models.ApprovalGroup, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.ApprovalGroup
	for _, g := range r.m.groups {
		if g.PackageID == packageID {
			g := g
			out = append(out, &g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memGroups) AddMember(_ context.Context, gm *models.GroupMember) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	g, ok := r.m.groups[gm.GroupID]
	if !ok || g.PackageID != gm.PackageID {
		return common.ErrorNotFound
	}
	if _, ok := r.m.users[gm.UserID]; !ok {
		return common.ErrorNotFound
	}
	for _, x := range r.m.groupMembers {
		if x.PackageID == gm.PackageID && x.UserID == gm.UserID {
			return common.ErrorConflict
		}
	}
	gm.CreatedAt = time.Now()
	r.m.groupMembers = append(r.m.groupMembers, *gm)
	groupID, userID := gm.GroupID, gm.UserID
	r.m.journal(func() { r.m.dropGroupMember(groupID, userID) })
	return nil
}

func (r memGroups) RemoveMember(_ context.Context, groupID int64, userID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, x := range r.m.dropGroupMember(groupID, userID) {
		r.m.journal(func() { r.m.groupMembers = append(r.m.groupMembers, x) })
	}
	return nil
}

func (m *memStore) dropGroupMember(groupID int64, userID string) []models.GroupMember {
	var kept, dropped []models.GroupMember
	for _, x := range m.groupMembers {
		if x.GroupID == groupID && x.UserID == userID {
			dropped = append(dropped, x)
			continue
		}
		kept = append(kept, x)
	}
	m.groupMembers = kept
	return dropped
}

func (r memGroups) ListMembers(_ context.Context, groupID int64) ([]*models.GroupMember, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.GroupMember
	for _, x := range r.m.groupMembers {
		if x.GroupID == groupID {
			x := x
			x.Email = r.m.users[x.UserID].Email
			out = append(out, &x)
		}
	}
	return out, nil
}

func (r memGroups) FindMembership(_ context.Context, packageID int64, userID string) (*models.GroupMember, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, x := range r.m.groupMembers {
		if x.PackageID == packageID && x.UserID == userID {
			x := x
			return &x, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memGroups) ListMemberUserIDs(_ context.Context, packageID int64) ([]string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []string
	for _, x := range r.m.groupMembers {
		if x.PackageID == packageID {
			out = append(out, x.UserID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// --- requests ---

type memRequests struct{ m *memDB }

func (r memRequests) Create(_ context.Context, req *models.ApprovalRequest) (*models.ApprovalRequest, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.packages[req.PackageID]; !ok {
		return nil, common.ErrorNotFound
	}
	req.ID = r.m.id()
	req.Status = models.StatusPending
	req.CreatedAt = time.Now()
	r.m.requests[req.ID] = *req
	id := req.ID
	r.m.journal(func() { delete(r.m.requests, id) })
	return req, nil
}

func (r memRequests) Get(_ context.Context, id int64) (*models.ApprovalRequest, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	req, ok := r.m.requests[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &req, nil
}

func (r memRequests) ListByPackage(_ context.Context, packageID int64) ([]*models.ApprovalRequest, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.ApprovalRequest
	for _, req := range r.m.requests {
		if req.PackageID == packageID {
			req := req
			out = append(out, &req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r memRequests) Transition(_ context.Context, id int64, status models.RequestStatus) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	req, ok := r.m.requests[id]
	if !ok || req.Status != models.StatusPending {
		return false, nil
	}
	prev := req
	t := time.Now()
	req.Status = status
	req.DecidedAt = &t
	r.m.requests[id] = req
	r.m.journal(func() { r.m.requests[id] = prev })
	return true, nil
}

// --- approvals ---

type memApprovals struct{ m *memDB }

func (r memApprovals) Create(_ context.Context, a *models.Approval) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.requests[a.RequestID]; !ok {
		return common.ErrorNotFound
	}
	for _, x := range r.m.approvals {
		if x.RequestID == a.RequestID && x.UserID == a.UserID {
			return common.ErrorConflict
		}
	}
	a.ID = r.m.id()
	a.CreatedAt = time.Now()
	r.m.approvals = append(r.m.approvals, *a)
	id := a.ID
	r.m.journal(func() {
		kept := r.m.approvals[:0]
		for _, x := range r.m.approvals {
			if x.ID != id {
				kept = append(kept, x)
			}
		}
		r.m.approvals = kept
	})
	return nil
}

func (r memApprovals) ListByRequest(_ context.Context, requestID int64) ([]*models.Approval, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Approval
	for _, x := range r.m.approvals {
		if x.RequestID == requestID {
			x := x
			out = append(out, &x)
		}
	}
	return out, nil
}

func (r memApprovals) SatisfiedGroupIDs(_ context.Context, requestID int64) ([]int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	req, ok := r.m.requests[requestID]
	if !ok {
		return nil, nil
	}
	seen := map[int64]bool{}
	var out []int64
	for _, a := range r.m.approvals {
		if a.RequestID != requestID {
			continue
		}
		for _, gm := range r.m.groupMembers {
			if gm.UserID == a.UserID && gm.PackageID == req.PackageID && !seen[gm.GroupID] {
				seen[gm.GroupID] = true
				out = append(out, gm.GroupID)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
