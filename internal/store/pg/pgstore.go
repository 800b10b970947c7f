package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"cpeconnect.org/internal/grants"
	"cpeconnect.org/internal/ids"
)

// Store implements grants.Store on top of PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ grants.Store = (*Store)(nil)

// Open connects to the database identified by dsn using the pgx driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection pool. Used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// mapErr translates driver errors into the domain sentinels. Unique
// violations become ErrConflict, missing foreign keys ErrNotFound.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return grants.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", grants.ErrConflict, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", grants.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

// --- Organizations ---

func (s *Store) CreateOrganization(ctx context.Context, org *grants.Organization) error {
	if org.ID == "" {
		org.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into organizations(id, name, neq, sector, size_band, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, org.ID, org.Name, org.NEQ, org.Sector, org.SizeBand, org.CreatedAt, org.UpdatedAt)
	return mapErr(err)
}

func (s *Store) GetOrganization(ctx context.Context, id string) (grants.Organization, error) {
	var org grants.Organization
	err := s.db.QueryRowContext(ctx, `
		select id, name, neq, sector, size_band, created_at, updated_at
		from organizations where id=$1
	`, id).Scan(&org.ID, &org.Name, &org.NEQ, &org.Sector, &org.SizeBand, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return grants.Organization{}, mapErr(err)
	}
	return org, nil
}

func (s *Store) ListOrganizations(ctx context.Context) ([]grants.Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, neq, sector, size_band, created_at, updated_at
		from organizations order by name asc
	`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []grants.Organization
	for rows.Next() {
		var org grants.Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.NEQ, &org.Sector, &org.SizeBand, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, org)
	}
	return out, rows.Err()
}

// --- Users ---

func (s *Store) CreateUser(ctx context.Context, u *grants.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, email, full_name, organization_id, user_role, created_at, updated_at)
		values ($1,$2,$3,nullif($4,''),$5,$6,$7)
	`, u.ID, u.Email, u.FullName, u.OrganizationID, string(u.Role), u.CreatedAt, u.UpdatedAt)
	return mapErr(err)
}

func (s *Store) GetUser(ctx context.Context, id string) (grants.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		select id, email, full_name, coalesce(organization_id,''), user_role, created_at, updated_at
		from users where id=$1
	`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (grants.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		select id, email, full_name, coalesce(organization_id,''), user_role, created_at, updated_at
		from users where lower(email)=lower($1)
	`, email))
}

func (s *Store) scanUser(row *sql.Row) (grants.User, error) {
	var u grants.User
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.OrganizationID, &role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return grants.User{}, mapErr(err)
	}
	u.Role = grants.Role(role)
	return u, nil
}

func (s *Store) ListUsersByOrg(ctx context.Context, orgID string) ([]grants.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, email, full_name, coalesce(organization_id,''), user_role, created_at, updated_at
		from users where organization_id=$1 order by email asc
	`, orgID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []grants.User
	for rows.Next() {
		var u grants.User
		var role string
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.OrganizationID, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		u.Role = grants.Role(role)
		out = append(out, u)
	}
	return out, rows.Err()
}

// --- Projects ---

func (s *Store) CreateProject(ctx context.Context, p *grants.Project) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into projects(id, organization_id, title, stream, description, status,
			funding_rate, total_budget, approved_funding, notes, created_by, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, p.ID, p.OrganizationID, p.Title, p.Stream, p.Description, string(p.Status),
		p.FundingRate, p.TotalBudget, p.ApprovedFunding, p.Notes, p.CreatedBy, p.CreatedAt, p.UpdatedAt)
	return mapErr(err)
}

const projectCols = `id, organization_id, title, stream, description, status,
	funding_rate, total_budget, approved_funding, notes, created_by, created_at, updated_at`

func scanProject(scan func(...any) error) (grants.Project, error) {
	var p grants.Project
	var status string
	err := scan(&p.ID, &p.OrganizationID, &p.Title, &p.Stream, &p.Description, &status,
		&p.FundingRate, &p.TotalBudget, &p.ApprovedFunding, &p.Notes, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return grants.Project{}, mapErr(err)
	}
	p.Status = grants.ProjectStatus(status)
	return p, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (grants.Project, error) {
	row := s.db.QueryRowContext(ctx, `select `+projectCols+` from projects where id=$1`, id)
	return scanProject(row.Scan)
}

func (s *Store) ListProjects(ctx context.Context, filter grants.ProjectFilter) ([]grants.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+projectCols+` from projects
		where ($1 = '' or organization_id = $1)
		  and ($2 = '' or status = $2)
		order by id asc
	`, filter.OrganizationID, string(filter.Status))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []grants.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpdateProject(ctx context.Context, p *grants.Project) error {
	res, err := s.db.ExecContext(ctx, `
		update projects set title=$2, stream=$3, description=$4, status=$5,
			funding_rate=$6, total_budget=$7, approved_funding=$8, notes=$9, updated_at=$10
		where id=$1
	`, p.ID, p.Title, p.Stream, p.Description, string(p.Status),
		p.FundingRate, p.TotalBudget, p.ApprovedFunding, p.Notes, p.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

// --- Cost lines ---

func (s *Store) CreateCostLine(ctx context.Context, l *grants.CostLine) error {
	if l.ID == "" {
		l.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into cost_lines(id, project_id, category, description, quantity, unit_cost,
			total, funding_rate, reimbursable, payment_claim_id, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,nullif($10,''),$11)
	`, l.ID, l.ProjectID, l.Category, l.Description, l.Quantity, l.UnitCost,
		l.Total, l.FundingRate, l.Reimbursable, l.PaymentClaimID, l.CreatedAt)
	return mapErr(err)
}

const costLineCols = `id, project_id, category, description, quantity, unit_cost,
	total, funding_rate, reimbursable, coalesce(payment_claim_id,''), created_at`

func scanCostLine(scan func(...any) error) (grants.CostLine, error) {
	var l grants.CostLine
	err := scan(&l.ID, &l.ProjectID, &l.Category, &l.Description, &l.Quantity, &l.UnitCost,
		&l.Total, &l.FundingRate, &l.Reimbursable, &l.PaymentClaimID, &l.CreatedAt)
	if err != nil {
		return grants.CostLine{}, mapErr(err)
	}
	return l, nil
}

func (s *Store) GetCostLine(ctx context.Context, id string) (grants.CostLine, error) {
	row := s.db.QueryRowContext(ctx, `select `+costLineCols+` from cost_lines where id=$1`, id)
	return scanCostLine(row.Scan)
}

func (s *Store) ListCostLines(ctx context.Context, projectID string) ([]grants.CostLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+costLineCols+` from cost_lines where project_id=$1 order by id asc
	`, projectID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []grants.CostLine
	for rows.Next() {
		l, err := scanCostLine(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) DeleteCostLine(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from cost_lines where id=$1`, id)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

// --- Claims ---

// CreateClaim inserts the claim and attaches the selected cost lines in
// one transaction. A line that vanished or got claimed since the service
// checked it aborts the whole claim.
func (s *Store) CreateClaim(ctx context.Context, c *grants.PaymentClaim, lineIDs []string) error {
	if c.ID == "" {
		c.ID = ids.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into payment_claims(id, project_id, organization_id, status, total_amount,
			rejection_reason, submitted_at, approved_at, paid_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, c.ID, c.ProjectID, c.OrganizationID, string(c.Status), c.TotalAmount,
		c.RejectionReason, c.SubmittedAt, c.ApprovedAt, c.PaidAt); err != nil {
		return mapErr(err)
	}

	for _, lineID := range lineIDs {
		res, err := tx.ExecContext(ctx, `
			update cost_lines set payment_claim_id=$1
			where id=$2 and payment_claim_id is null
		`, c.ID, lineID)
		if err != nil {
			return mapErr(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: cost line %s unavailable", grants.ErrConflict, lineID)
		}
	}
	return tx.Commit()
}

const claimCols = `id, project_id, organization_id, status, total_amount,
	coalesce(rejection_reason,''), submitted_at, approved_at, paid_at`

func scanClaim(scan func(...any) error) (grants.PaymentClaim, error) {
	var c grants.PaymentClaim
	var status string
	err := scan(&c.ID, &c.ProjectID, &c.OrganizationID, &status, &c.TotalAmount,
		&c.RejectionReason, &c.SubmittedAt, &c.ApprovedAt, &c.PaidAt)
	if err != nil {
		return grants.PaymentClaim{}, mapErr(err)
	}
	c.Status = grants.ClaimStatus(status)
	return c, nil
}

func (s *Store) GetClaim(ctx context.Context, id string) (grants.PaymentClaim, error) {
	row := s.db.QueryRowContext(ctx, `select `+claimCols+` from payment_claims where id=$1`, id)
	return scanClaim(row.Scan)
}

func (s *Store) ListClaimsByProject(ctx context.Context, projectID string) ([]grants.PaymentClaim, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+claimCols+` from payment_claims where project_id=$1 order by id asc
	`, projectID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []grants.PaymentClaim
	for rows.Next() {
		c, err := scanClaim(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateClaim(ctx context.Context, c *grants.PaymentClaim) error {
	res, err := s.db.ExecContext(ctx, `
		update payment_claims set status=$2, total_amount=$3, rejection_reason=$4,
			approved_at=$5, paid_at=$6
		where id=$1
	`, c.ID, string(c.Status), c.TotalAmount, c.RejectionReason, c.ApprovedAt, c.PaidAt)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

// RejectClaim records the rejection and releases every attached cost line
// in one transaction.
func (s *Store) RejectClaim(ctx context.Context, c *grants.PaymentClaim) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update payment_claims set status=$2, rejection_reason=$3 where id=$1
	`, c.ID, string(c.Status), c.RejectionReason)
	if err != nil {
		return mapErr(err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		update cost_lines set payment_claim_id=null where payment_claim_id=$1
	`, c.ID); err != nil {
		return mapErr(err)
	}
	return tx.Commit()
}

// --- Milestones ---

func (s *Store) CreateMilestone(ctx context.Context, m *grants.ProjectMilestone) error {
	if m.ID == "" {
		m.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into project_milestones(id, project_id, name_fr, name_en, due_date, notes, status, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, m.ID, m.ProjectID, m.NameFR, m.NameEN, m.DueDate, m.Notes, string(m.Status), m.CreatedAt)
	return mapErr(err)
}

func (s *Store) GetMilestone(ctx context.Context, id string) (grants.ProjectMilestone, error) {
	var m grants.ProjectMilestone
	var status string
	err := s.db.QueryRowContext(ctx, `
		select id, project_id, name_fr, name_en, due_date, notes, status, created_at
		from project_milestones where id=$1
	`, id).Scan(&m.ID, &m.ProjectID, &m.NameFR, &m.NameEN, &m.DueDate, &m.Notes, &status, &m.CreatedAt)
	if err != nil {
		return grants.ProjectMilestone{}, mapErr(err)
	}
	m.Status = grants.MilestoneStatus(status)
	return m, nil
}

func (s *Store) ListMilestones(ctx context.Context, projectID string) ([]grants.ProjectMilestone, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, project_id, name_fr, name_en, due_date, notes, status, created_at
		from project_milestones where project_id=$1 order by due_date asc
	`, projectID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []grants.ProjectMilestone
	for rows.Next() {
		var m grants.ProjectMilestone
		var status string
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.NameFR, &m.NameEN, &m.DueDate, &m.Notes, &status, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Status = grants.MilestoneStatus(status)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) UpdateMilestone(ctx context.Context, m *grants.ProjectMilestone) error {
	res, err := s.db.ExecContext(ctx, `
		update project_milestones set name_fr=$2, name_en=$3, due_date=$4, notes=$5, status=$6
		where id=$1
	`, m.ID, m.NameFR, m.NameEN, m.DueDate, m.Notes, string(m.Status))
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

func (s *Store) DeleteMilestone(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from project_milestones where id=$1`, id)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

// --- Comments ---

func (s *Store) CreateComment(ctx context.Context, c *grants.Comment) error {
	if c.ID == "" {
		c.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into comments(id, project_id, author_email, author_name, body, created_at)
		values ($1,$2,$3,$4,$5,$6)
	`, c.ID, c.ProjectID, c.AuthorEmail, c.AuthorName, c.Body, c.CreatedAt)
	return mapErr(err)
}

func (s *Store) ListComments(ctx context.Context, projectID string) ([]grants.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, project_id, author_email, author_name, body, created_at
		from comments where project_id=$1 order by id asc
	`, projectID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []grants.Comment
	for rows.Next() {
		var c grants.Comment
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.AuthorEmail, &c.AuthorName, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Documents ---

func (s *Store) CreateDocument(ctx context.Context, d *grants.Document) error {
	if d.ID == "" {
		d.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into documents(id, project_id, file_name, file_url, uploaded_by, created_at)
		values ($1,$2,$3,$4,$5,$6)
	`, d.ID, d.ProjectID, d.FileName, d.FileURL, d.UploadedBy, d.CreatedAt)
	return mapErr(err)
}

func (s *Store) GetDocument(ctx context.Context, id string) (grants.Document, error) {
	var d grants.Document
	err := s.db.QueryRowContext(ctx, `
		select id, project_id, file_name, file_url, uploaded_by, created_at
		from documents where id=$1
	`, id).Scan(&d.ID, &d.ProjectID, &d.FileName, &d.FileURL, &d.UploadedBy, &d.CreatedAt)
	if err != nil {
		return grants.Document{}, mapErr(err)
	}
	return d, nil
}

func (s *Store) ListDocuments(ctx context.Context, projectID string) ([]grants.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, project_id, file_name, file_url, uploaded_by, created_at
		from documents where project_id=$1 order by id asc
	`, projectID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []grants.Document
	for rows.Next() {
		var d grants.Document
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.FileName, &d.FileURL, &d.UploadedBy, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from documents where id=$1`, id)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

// --- Notifications ---

func (s *Store) CreateNotification(ctx context.Context, n *grants.Notification) error {
	if n.ID == "" {
		n.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into notifications(id, user_email, message_fr, message_en, link_url, icon, read, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, n.ID, n.UserEmail, n.MessageFR, n.MessageEN, n.LinkURL, n.Icon, n.Read, n.CreatedAt)
	return mapErr(err)
}

func (s *Store) ListNotifications(ctx context.Context, userEmail string) ([]grants.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_email, message_fr, message_en, link_url, icon, read, created_at
		from notifications where lower(user_email)=lower($1) order by id desc
	`, userEmail)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []grants.Notification
	for rows.Next() {
		var n grants.Notification
		if err := rows.Scan(&n.ID, &n.UserEmail, &n.MessageFR, &n.MessageEN, &n.LinkURL, &n.Icon, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, id, userEmail string) error {
	res, err := s.db.ExecContext(ctx, `
		update notifications set read=true where id=$1 and lower(user_email)=lower($2)
	`, id, userEmail)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

// --- helpers ---

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return grants.ErrNotFound
	}
	return nil
}
