// Package sqlstore implements store.ContactStore on database/sql, building
// dialect-specific statements with squirrel.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"contactlink/internal/database"
	"contactlink/internal/models"
	"contactlink/internal/store"
)

const table = "contacts"

var contactColumns = []string{
	"id", "phone_number", "email", "linked_id", "link_precedence", "created_at", "updated_at", "deleted_at",
}

// Store persists contacts in a SQLite or PostgreSQL database.
type Store struct {
	db  *database.DB
	tx  *database.TxManager
	sb  squirrel.StatementBuilderType
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a contact store on top of db.
func New(db *database.DB, opts ...Option) *Store {
	var placeholder squirrel.PlaceholderFormat = squirrel.Question
	if db.IsPostgres() {
		placeholder = squirrel.Dollar
	}

	s := &Store{
		db:  db,
		tx:  database.NewTxManager(db),
		sb:  squirrel.StatementBuilder.PlaceholderFormat(placeholder),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.ContactStore = (*Store)(nil)

// Find returns non-deleted contacts matching f, oldest first.
func (s *Store) Find(ctx context.Context, f store.Filter) ([]models.Contact, error) {
	if f.Empty() {
		return []models.Contact{}, nil
	}

	q := s.sb.Select(contactColumns...).
		From(table).
		Where(where(f)).
		OrderBy("created_at ASC", "id ASC")

	if f.Lock && s.db.IsPostgres() {
		if _, inTx := database.TxFromCtx(ctx); inTx {
			q = q.Suffix("FOR UPDATE")
		}
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find query: %w", err)
	}

	contacts, err := s.queryContacts(ctx, query, args...)
	if err != nil {
		return nil, database.MapError(err, "find contacts")
	}
	return contacts, nil
}

// Create inserts a new contact and returns it as stored.
func (s *Store) Create(ctx context.Context, c store.NewContact) (models.Contact, error) {
	now := s.timestamp()

	q := s.sb.Insert(table).
		Columns("phone_number", "email", "linked_id", "link_precedence", "created_at", "updated_at").
		Values(c.PhoneNumber, c.Email, c.LinkedID, string(c.LinkPrecedence), now, now)

	var id int64
	if s.db.IsPostgres() {
		query, args, err := q.Suffix("RETURNING id").ToSql()
		if err != nil {
			return models.Contact{}, fmt.Errorf("build insert query: %w", err)
		}
		if err := s.db.Querier(ctx).QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			return models.Contact{}, database.MapError(err, "create contact")
		}
	} else {
		query, args, err := q.ToSql()
		if err != nil {
			return models.Contact{}, fmt.Errorf("build insert query: %w", err)
		}
		res, err := s.db.Querier(ctx).ExecContext(ctx, query, args...)
		if err != nil {
			return models.Contact{}, database.MapError(err, "create contact")
		}
		if id, err = res.LastInsertId(); err != nil {
			return models.Contact{}, fmt.Errorf("create contact: last insert id: %w", err)
		}
	}

	return s.getByID(ctx, id)
}

// UpdateMany applies p to all non-deleted contacts matching f.
func (s *Store) UpdateMany(ctx context.Context, f store.Filter, p store.Patch) (int64, error) {
	set := s.setClause(p)
	if f.Empty() || len(set) == 0 {
		return 0, nil
	}

	query, args, err := s.sb.Update(table).SetMap(set).Where(where(f)).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update query: %w", err)
	}

	res, err := s.db.Querier(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, database.MapError(err, "update contacts")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update contacts: rows affected: %w", err)
	}
	return n, nil
}

// Update applies p to a single non-deleted contact.
func (s *Store) Update(ctx context.Context, id int64, p store.Patch) (models.Contact, error) {
	set := s.setClause(p)
	if len(set) == 0 {
		return s.getByID(ctx, id)
	}

	query, args, err := s.sb.Update(table).
		SetMap(set).
		Where(squirrel.Eq{"id": id, "deleted_at": nil}).
		ToSql()
	if err != nil {
		return models.Contact{}, fmt.Errorf("build update query: %w", err)
	}

	res, err := s.db.Querier(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return models.Contact{}, database.MapError(err, fmt.Sprintf("update contact %d", id))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.Contact{}, fmt.Errorf("update contact %d: %w", id, models.ErrNotFound)
	}

	return s.getByID(ctx, id)
}

// Transaction runs fn inside a database transaction.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.tx.RunInTx(ctx, fn)
}

func (s *Store) getByID(ctx context.Context, id int64) (models.Contact, error) {
	query, args, err := s.sb.Select(contactColumns...).
		From(table).
		Where(squirrel.Eq{"id": id, "deleted_at": nil}).
		ToSql()
	if err != nil {
		return models.Contact{}, fmt.Errorf("build select query: %w", err)
	}

	c, err := scanContact(s.db.Querier(ctx).QueryRowContext(ctx, query, args...))
	if err != nil {
		return models.Contact{}, database.MapError(err, fmt.Sprintf("contact %d", id))
	}
	return c, nil
}

// queryContacts executes a query and returns contacts
func (s *Store) queryContacts(ctx context.Context, query string, args ...any) ([]models.Contact, error) {
	rows, err := s.db.Querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []models.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}

	return contacts, rows.Err()
}

func (s *Store) setClause(p store.Patch) map[string]any {
	set := map[string]any{}
	if p.LinkedID != nil {
		set["linked_id"] = *p.LinkedID
	}
	if p.LinkPrecedence != nil {
		set["link_precedence"] = string(*p.LinkPrecedence)
	}
	if len(set) > 0 {
		set["updated_at"] = s.timestamp()
	}
	return set
}

// timestamp truncates to microseconds, the precision PostgreSQL keeps.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func where(f store.Filter) squirrel.Sqlizer {
	var anyOf squirrel.Or
	if f.Email != nil {
		anyOf = append(anyOf, squirrel.Eq{"email": *f.Email})
	}
	if f.PhoneNumber != nil {
		anyOf = append(anyOf, squirrel.Eq{"phone_number": *f.PhoneNumber})
	}
	if len(f.IDs) > 0 {
		anyOf = append(anyOf, squirrel.Eq{"id": f.IDs})
	}
	if len(f.LinkedIDs) > 0 {
		anyOf = append(anyOf, squirrel.Eq{"linked_id": f.LinkedIDs})
	}
	return squirrel.And{anyOf, squirrel.Eq{"deleted_at": nil}}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContact(row scanner) (models.Contact, error) {
	var (
		c          models.Contact
		phone      sql.NullString
		email      sql.NullString
		linkedID   sql.NullInt64
		precedence string
		deletedAt  sql.NullTime
	)

	err := row.Scan(&c.ID, &phone, &email, &linkedID, &precedence, &c.CreatedAt, &c.UpdatedAt, &deletedAt)
	if err != nil {
		return models.Contact{}, err
	}

	c.LinkPrecedence = models.LinkPrecedence(precedence)
	if phone.Valid {
		c.PhoneNumber = &phone.String
	}
	if email.Valid {
		c.Email = &email.String
	}
	if linkedID.Valid {
		c.LinkedID = &linkedID.Int64
	}
	if deletedAt.Valid {
		c.DeletedAt = &deletedAt.Time
	}
	return c, nil
}
