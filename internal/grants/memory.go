package grants

import (
	"context"
	"sort"
	"strings"
	"sync"

	"cpeconnect.org/internal/ids"
)

// InMemory implements Store with in-process concurrency safety. It backs
// tests and DSN-less development runs; production deployments use the
// Postgres store.
type InMemory struct {
	mu            sync.RWMutex
	orgs          map[string]Organization
	users         map[string]User
	projects      map[string]Project
	costLines     map[string]CostLine
	claims        map[string]PaymentClaim
	milestones    map[string]ProjectMilestone
	comments      map[string]Comment
	documents     map[string]Document
	notifications map[string]Notification
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		orgs:          make(map[string]Organization),
		users:         make(map[string]User),
		projects:      make(map[string]Project),
		costLines:     make(map[string]CostLine),
		claims:        make(map[string]PaymentClaim),
		milestones:    make(map[string]ProjectMilestone),
		comments:      make(map[string]Comment),
		documents:     make(map[string]Document),
		notifications: make(map[string]Notification),
	}
}

var _ Store = (*InMemory)(nil)

func (s *InMemory) CreateOrganization(_ context.Context, org *Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if org.ID == "" {
		org.ID = ids.New()
	}
	for _, existing := range s.orgs {
		if strings.EqualFold(existing.Name, org.Name) {
			return ErrConflict
		}
	}
	s.orgs[org.ID] = *org
	return nil
}

func (s *InMemory) GetOrganization(_ context.Context, id string) (Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgs[id]
	if !ok {
		return Organization{}, ErrNotFound
	}
	return org, nil
}

func (s *InMemory) ListOrganizations(_ context.Context) ([]Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Organization, 0, len(s.orgs))
	for _, org := range s.orgs {
		out = append(out, org)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) CreateUser(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = ids.New()
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrConflict
		}
	}
	s.users[u.ID] = *u
	return nil
}

func (s *InMemory) GetUser(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *InMemory) GetUserByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (s *InMemory) ListUsersByOrg(_ context.Context, orgID string) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []User
	for _, u := range s.users {
		if u.OrganizationID == orgID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *InMemory) CreateProject(_ context.Context, p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = ids.New()
	}
	if _, ok := s.orgs[p.OrganizationID]; !ok {
		return ErrNotFound
	}
	s.projects[p.ID] = *p
	return nil
}

func (s *InMemory) GetProject(_ context.Context, id string) (Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return Project{}, ErrNotFound
	}
	return p, nil
}

func (s *InMemory) ListProjects(_ context.Context, filter ProjectFilter) ([]Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Project
	for _, p := range s.projects {
		if filter.OrganizationID != "" && p.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) UpdateProject(_ context.Context, p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.ID]; !ok {
		return ErrNotFound
	}
	s.projects[p.ID] = *p
	return nil
}

func (s *InMemory) CreateCostLine(_ context.Context, l *CostLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = ids.New()
	}
	if _, ok := s.projects[l.ProjectID]; !ok {
		return ErrNotFound
	}
	s.costLines[l.ID] = *l
	return nil
}

func (s *InMemory) GetCostLine(_ context.Context, id string) (CostLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.costLines[id]
	if !ok {
		return CostLine{}, ErrNotFound
	}
	return l, nil
}

func (s *InMemory) ListCostLines(_ context.Context, projectID string) ([]CostLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []CostLine
	for _, l := range s.costLines {
		if l.ProjectID == projectID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) DeleteCostLine(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.costLines[id]; !ok {
		return ErrNotFound
	}
	delete(s.costLines, id)
	return nil
}

func (s *InMemory) CreateClaim(_ context.Context, c *PaymentClaim, lineIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = ids.New()
	}
	for _, id := range lineIDs {
		line, ok := s.costLines[id]
		if !ok {
			return ErrNotFound
		}
		if line.Claimed() {
			return ErrConflict
		}
	}
	s.claims[c.ID] = *c
	for _, id := range lineIDs {
		line := s.costLines[id]
		line.PaymentClaimID = c.ID
		s.costLines[id] = line
	}
	return nil
}

func (s *InMemory) GetClaim(_ context.Context, id string) (PaymentClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.claims[id]
	if !ok {
		return PaymentClaim{}, ErrNotFound
	}
	return c, nil
}

func (s *InMemory) ListClaimsByProject(_ context.Context, projectID string) ([]PaymentClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []PaymentClaim
	for _, c := range s.claims {
		if c.ProjectID == projectID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) UpdateClaim(_ context.Context, c *PaymentClaim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claims[c.ID]; !ok {
		return ErrNotFound
	}
	s.claims[c.ID] = *c
	return nil
}

func (s *InMemory) RejectClaim(_ context.Context, c *PaymentClaim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claims[c.ID]; !ok {
		return ErrNotFound
	}
	s.claims[c.ID] = *c
	for id, line := range s.costLines {
		if line.PaymentClaimID == c.ID {
			line.PaymentClaimID = ""
			s.costLines[id] = line
		}
	}
	return nil
}

func (s *InMemory) CreateMilestone(_ context.Context, m *ProjectMilestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = ids.New()
	}
	if _, ok := s.projects[m.ProjectID]; !ok {
		return ErrNotFound
	}
	s.milestones[m.ID] = *m
	return nil
}

func (s *InMemory) GetMilestone(_ context.Context, id string) (ProjectMilestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.milestones[id]
	if !ok {
		return ProjectMilestone{}, ErrNotFound
	}
	return m, nil
}

func (s *InMemory) ListMilestones(_ context.Context, projectID string) ([]ProjectMilestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ProjectMilestone
	for _, m := range s.milestones {
		if m.ProjectID == projectID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (s *InMemory) UpdateMilestone(_ context.Context, m *ProjectMilestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.milestones[m.ID]; !ok {
		return ErrNotFound
	}
	s.milestones[m.ID] = *m
	return nil
}

func (s *InMemory) DeleteMilestone(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.milestones[id]; !ok {
		return ErrNotFound
	}
	delete(s.milestones, id)
	return nil
}

func (s *InMemory) CreateComment(_ context.Context, c *Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = ids.New()
	}
	if _, ok := s.projects[c.ProjectID]; !ok {
		return ErrNotFound
	}
	s.comments[c.ID] = *c
	return nil
}

func (s *InMemory) ListComments(_ context.Context, projectID string) ([]Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Comment
	for _, c := range s.comments {
		if c.ProjectID == projectID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) CreateDocument(_ context.Context, d *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == "" {
		d.ID = ids.New()
	}
	if _, ok := s.projects[d.ProjectID]; !ok {
		return ErrNotFound
	}
	s.documents[d.ID] = *d
	return nil
}

func (s *InMemory) GetDocument(_ context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return d, nil
}

func (s *InMemory) ListDocuments(_ context.Context, projectID string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Document
	for _, d := range s.documents {
		if d.ProjectID == projectID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return ErrNotFound
	}
	delete(s.documents, id)
	return nil
}

func (s *InMemory) CreateNotification(_ context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = ids.New()
	}
	s.notifications[n.ID] = *n
	return nil
}

func (s *InMemory) ListNotifications(_ context.Context, userEmail string) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Notification
	for _, n := range s.notifications {
		if strings.EqualFold(n.UserEmail, userEmail) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *InMemory) MarkNotificationRead(_ context.Context, id, userEmail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || !strings.EqualFold(n.UserEmail, userEmail) {
		return ErrNotFound
	}
	n.Read = true
	s.notifications[id] = n
	return nil
}
