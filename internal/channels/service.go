// Package channels is the local owner of channel entities. It keeps the
// per-channel counters and ban lists the event layer maintains, and mints
// the handles the watch registry holds.
package channels

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/clk-66/spectrus-realtime/internal/chat"
	"github.com/clk-66/spectrus-realtime/internal/registry"
)

var ErrNotFound = errors.New("not found")

// ---- Domain types --------------------------------------------------------

// State is the cached bookkeeping for one channel.
type State struct {
	CID          chat.ChannelID `json:"cid"`
	Name         string         `json:"name"`
	MemberCount  int            `json:"member_count"`
	WatcherCount int            `json:"watcher_count"`
	UnreadCount  int            `json:"unread_count"`
}

type Ban struct {
	UserID    string     `json:"user_id"`
	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// ---- Service -------------------------------------------------------------

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Upsert stores the descriptive fields of ch, keeping existing counters.
func (s *Service) Upsert(ctx context.Context, ch chat.Channel) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (cid, type, id, name, member_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(cid) DO UPDATE SET
			name         = excluded.name,
			member_count = excluded.member_count,
			updated_at   = CURRENT_TIMESTAMP
	`, ch.CID.String(), ch.CID.Type, ch.CID.ID, ch.Name, ch.MemberCount)
	return err
}

// Attach creates the channel row if needed and mints a live handle for it.
func (s *Service) Attach(ctx context.Context, cid chat.ChannelID) (registry.Handle, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (cid, type, id) VALUES (?, ?, ?) ON CONFLICT(cid) DO NOTHING`,
		cid.String(), cid.Type, cid.ID,
	); err != nil {
		return "", err
	}
	h := registry.NewHandle()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO channel_handles (handle, cid) VALUES (?, ?)`, string(h), cid.String(),
	); err != nil {
		return "", err
	}
	return h, nil
}

// Release kills a handle. Releasing an unknown handle is not an error.
func (s *Service) Release(ctx context.Context, h registry.Handle) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM channel_handles WHERE handle = ?`, string(h))
	return err
}

// Resolves reports whether h is still live. It implements registry.Resolver.
func (s *Service) Resolves(ctx context.Context, h registry.Handle) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM channel_handles WHERE handle = ?)`, string(h),
	).Scan(&exists)
	return exists, err
}

func (s *Service) Get(ctx context.Context, cid chat.ChannelID) (*State, error) {
	st := State{CID: cid}
	err := s.db.QueryRowContext(ctx, `
		SELECT name, member_count, watcher_count, unread_count
		FROM channels WHERE cid = ?
	`, cid.String()).Scan(&st.Name, &st.MemberCount, &st.WatcherCount, &st.UnreadCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// List returns every cached channel ordered by cid.
func (s *Service) List(ctx context.Context) ([]State, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, id, name, member_count, watcher_count, unread_count
		FROM channels ORDER BY cid ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []State{}
	for rows.Next() {
		var st State
		if err := rows.Scan(&st.CID.Type, &st.CID.ID, &st.Name, &st.MemberCount, &st.WatcherCount, &st.UnreadCount); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Service) SetWatcherCount(ctx context.Context, cid chat.ChannelID, n int) error {
	return s.update(ctx, `UPDATE channels SET watcher_count = ?, updated_at = CURRENT_TIMESTAMP WHERE cid = ?`, n, cid.String())
}

func (s *Service) SetUnread(ctx context.Context, cid chat.ChannelID, n int) error {
	return s.update(ctx, `UPDATE channels SET unread_count = ?, updated_at = CURRENT_TIMESTAMP WHERE cid = ?`, n, cid.String())
}

func (s *Service) ResetUnread(ctx context.Context, cid chat.ChannelID) error {
	return s.update(ctx, `UPDATE channels SET unread_count = 0, updated_at = CURRENT_TIMESTAMP WHERE cid = ?`, cid.String())
}

// ResetAllUnread zeroes the unread counter of every cached channel.
func (s *Service) ResetAllUnread(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `UPDATE channels SET unread_count = 0, updated_at = CURRENT_TIMESTAMP WHERE unread_count <> 0`)
	return err
}

// Ban adds or refreshes userID in the ban list of cid.
func (s *Service) Ban(ctx context.Context, cid chat.ChannelID, b Ban) error {
	if _, err := s.Get(ctx, cid); err != nil {
		return err
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channel_bans (cid, user_id, reason, expires_at, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(cid, user_id) DO UPDATE SET
			reason     = excluded.reason,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at
	`, cid.String(), b.UserID, b.Reason, nullTime(b.ExpiresAt), b.CreatedAt)
	return err
}

// Unban removes userID from the ban list of cid and reports whether it was
// there.
func (s *Service) Unban(ctx context.Context, cid chat.ChannelID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM channel_bans WHERE cid = ? AND user_id = ?`, cid.String(), userID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Service) Bans(ctx context.Context, cid chat.ChannelID) ([]Ban, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, reason, expires_at, created_at
		FROM channel_bans WHERE cid = ? ORDER BY user_id ASC
	`, cid.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Ban{}
	for rows.Next() {
		var b Ban
		var expires sql.NullTime
		if err := rows.Scan(&b.UserID, &b.Reason, &expires, &b.CreatedAt); err != nil {
			return nil, err
		}
		if expires.Valid {
			b.ExpiresAt = &expires.Time
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Service) update(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
