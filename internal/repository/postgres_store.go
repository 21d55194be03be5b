package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"dorm-engine/internal/domain"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore PostgreSQL 存储实现
// 读写事务中的 Get 使用 SELECT ... FOR UPDATE 锁定行，防止并发审批/分配
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore 创建 PostgreSQL 存储
func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// 确保实现了接口
var _ Store = (*PostgresStore)(nil)

// EnsureSchema 执行内嵌的建表语句（幂等）
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx, forUpdate: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) View(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx, readOnly: true}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type pgTx struct {
	tx        *sql.Tx
	forUpdate bool
	readOnly  bool
}

type rowScanner interface {
	Scan(dest ...any) error
}

// where 构建 WHERE 条件，占位符按追加顺序编号
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *where) addIf(ok bool, cond string, arg any) {
	if ok {
		w.add(cond, arg)
	}
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (t *pgTx) lockClause() string {
	if t.forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

func (t *pgTx) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (t *pgTx) getOne(ctx context.Context, entity, table, keyCol, cols, id string, scan func(rowScanner) error) error {
	q := "SELECT " + cols + " FROM " + table + " WHERE " + keyCol + " = $1" + t.lockClause()
	err := scan(t.tx.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFound(entity, id)
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", entity, err)
	}
	return nil
}

func (t *pgTx) list(ctx context.Context, entity, table, keyCol, cols string, w *where, scan func(rowScanner) error) error {
	q := "SELECT " + cols + " FROM " + table + w.String() + " ORDER BY " + keyCol
	rows, err := t.tx.QueryContext(ctx, q, w.args...)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", entity, err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("failed to scan %s: %w", entity, err)
		}
	}
	return rows.Err()
}

func (t *pgTx) exec(ctx context.Context, entity, q string, args ...any) error {
	if _, err := t.tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("failed to save %s: %w", entity, err)
	}
	return nil
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// ============================================
// residents
// ============================================

const residentCols = `user_id, first_name, last_name, gender, residential_status, room_id, locker_id,
	passes_used, max_passes, campus_status`

func scanResident(s rowScanner) (*domain.Resident, error) {
	var r domain.Resident
	err := s.Scan(&r.UserID, &r.FirstName, &r.LastName, &r.Gender, &r.ResidentialStatus,
		&r.RoomID, &r.LockerID, &r.PassesUsed, &r.MaxPasses, &r.CampusStatus)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *pgTx) GetResident(ctx context.Context, userID string) (*domain.Resident, error) {
	var out *domain.Resident
	err := t.getOne(ctx, "resident", "residents", "user_id", residentCols, userID, func(s rowScanner) (err error) {
		out, err = scanResident(s)
		return err
	})
	return out, err
}

func (t *pgTx) PutResident(ctx context.Context, r *domain.Resident) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	return t.exec(ctx, "resident", `
		INSERT INTO residents (`+residentCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			gender = EXCLUDED.gender,
			residential_status = EXCLUDED.residential_status,
			room_id = EXCLUDED.room_id,
			locker_id = EXCLUDED.locker_id,
			passes_used = EXCLUDED.passes_used,
			max_passes = EXCLUDED.max_passes,
			campus_status = EXCLUDED.campus_status`,
		r.UserID, r.FirstName, r.LastName, r.Gender, r.ResidentialStatus,
		r.RoomID, r.LockerID, r.PassesUsed, r.MaxPasses, r.CampusStatus)
}

func (t *pgTx) ListResidents(ctx context.Context, f ResidentFilter) ([]*domain.Resident, error) {
	w := &where{}
	w.addIf(f.UserID != "", "user_id = ?", f.UserID)
	w.addIf(f.Gender != "", "gender = ?", f.Gender)
	w.addIf(f.ResidentialStatus != "", "residential_status = ?", f.ResidentialStatus)
	w.addIf(f.CampusStatus != "", "campus_status = ?", f.CampusStatus)
	w.addIf(f.RoomID != "", "room_id = ?", f.RoomID)

	out := []*domain.Resident{}
	err := t.list(ctx, "residents", "residents", "user_id", residentCols, w, func(s rowScanner) error {
		r, err := scanResident(s)
		if err == nil {
			out = append(out, r)
		}
		return err
	})
	return out, err
}

// ============================================
// gate_passes
// ============================================

const gatePassCols = `id, user_id, destination, reason, request_date, request_time, departure_date, return_date,
	status, is_used, approved_by, approved_at, rejection_reason, confirmed_by, used_at`

func scanGatePass(s rowScanner) (*domain.GatePass, error) {
	var p domain.GatePass
	var approvedAt, usedAt sql.NullTime
	err := s.Scan(&p.ID, &p.UserID, &p.Destination, &p.Reason, &p.RequestDate, &p.RequestTime,
		&p.DepartureDate, &p.ReturnDate, &p.Status, &p.IsUsed, &p.ApprovedBy, &approvedAt,
		&p.RejectionReason, &p.ConfirmedBy, &usedAt)
	if err != nil {
		return nil, err
	}
	p.ApprovedAt = timePtr(approvedAt)
	p.UsedAt = timePtr(usedAt)
	return &p, nil
}

func (t *pgTx) GetGatePass(ctx context.Context, id string) (*domain.GatePass, error) {
	var out *domain.GatePass
	err := t.getOne(ctx, "gate pass", "gate_passes", "id", gatePassCols, id, func(s rowScanner) (err error) {
		out, err = scanGatePass(s)
		return err
	})
	return out, err
}

func (t *pgTx) PutGatePass(ctx context.Context, p *domain.GatePass) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	return t.exec(ctx, "gate pass", `
		INSERT INTO gate_passes (`+gatePassCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			is_used = EXCLUDED.is_used,
			approved_by = EXCLUDED.approved_by,
			approved_at = EXCLUDED.approved_at,
			rejection_reason = EXCLUDED.rejection_reason,
			confirmed_by = EXCLUDED.confirmed_by,
			used_at = EXCLUDED.used_at`,
		p.ID, p.UserID, p.Destination, p.Reason, p.RequestDate, p.RequestTime, p.DepartureDate, p.ReturnDate,
		p.Status, p.IsUsed, p.ApprovedBy, nullTime(p.ApprovedAt), p.RejectionReason, p.ConfirmedBy, nullTime(p.UsedAt))
}

func (t *pgTx) ListGatePasses(ctx context.Context, f GatePassFilter) ([]*domain.GatePass, error) {
	w := &where{}
	w.addIf(f.UserID != "", "user_id = ?", f.UserID)
	w.addIf(f.Status != "", "status = ?", f.Status)
	if f.IsUsed != nil {
		w.add("is_used = ?", *f.IsUsed)
	}

	out := []*domain.GatePass{}
	err := t.list(ctx, "gate passes", "gate_passes", "id", gatePassCols, w, func(s rowScanner) error {
		p, err := scanGatePass(s)
		if err == nil {
			out = append(out, p)
		}
		return err
	})
	return out, err
}

// ============================================
// leaves
// ============================================

const leaveCols = `id, user_id, type, start_date, end_date, reason, status, approved_by, approved_at, comments, created_at`

func scanLeave(s rowScanner) (*domain.Leave, error) {
	var l domain.Leave
	var approvedAt sql.NullTime
	err := s.Scan(&l.ID, &l.UserID, &l.Type, &l.StartDate, &l.EndDate, &l.Reason, &l.Status,
		&l.ApprovedBy, &approvedAt, &l.Comments, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	l.ApprovedAt = timePtr(approvedAt)
	return &l, nil
}

func (t *pgTx) GetLeave(ctx context.Context, id string) (*domain.Leave, error) {
	var out *domain.Leave
	err := t.getOne(ctx, "leave", "leaves", "id", leaveCols, id, func(s rowScanner) (err error) {
		out, err = scanLeave(s)
		return err
	})
	return out, err
}

func (t *pgTx) PutLeave(ctx context.Context, l *domain.Leave) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := l.Validate(); err != nil {
		return err
	}
	return t.exec(ctx, "leave", `
		INSERT INTO leaves (`+leaveCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			approved_by = EXCLUDED.approved_by,
			approved_at = EXCLUDED.approved_at,
			comments = EXCLUDED.comments`,
		l.ID, l.UserID, l.Type, l.StartDate, l.EndDate, l.Reason, l.Status,
		l.ApprovedBy, nullTime(l.ApprovedAt), l.Comments, l.CreatedAt)
}

func (t *pgTx) ListLeaves(ctx context.Context, f LeaveFilter) ([]*domain.Leave, error) {
	w := &where{}
	w.addIf(f.UserID != "", "user_id = ?", f.UserID)
	w.addIf(f.Status != "", "status = ?", f.Status)
	w.addIf(f.Type != "", "type = ?", f.Type)

	out := []*domain.Leave{}
	err := t.list(ctx, "leaves", "leaves", "id", leaveCols, w, func(s rowScanner) error {
		l, err := scanLeave(s)
		if err == nil {
			out = append(out, l)
		}
		return err
	})
	return out, err
}

// ============================================
// nurse_referrals
// ============================================

const referralCols = `id, user_id, referred_by, reason, status, referred_at, completed_at, doctor_notes, nurse_report`

func scanReferral(s rowScanner) (*domain.NurseReferral, error) {
	var r domain.NurseReferral
	var completedAt sql.NullTime
	err := s.Scan(&r.ID, &r.UserID, &r.ReferredBy, &r.Reason, &r.Status, &r.ReferredAt,
		&completedAt, &r.DoctorNotes, &r.NurseReport)
	if err != nil {
		return nil, err
	}
	r.CompletedAt = timePtr(completedAt)
	return &r, nil
}

func (t *pgTx) GetReferral(ctx context.Context, id string) (*domain.NurseReferral, error) {
	var out *domain.NurseReferral
	err := t.getOne(ctx, "referral", "nurse_referrals", "id", referralCols, id, func(s rowScanner) (err error) {
		out, err = scanReferral(s)
		return err
	})
	return out, err
}

func (t *pgTx) PutReferral(ctx context.Context, r *domain.NurseReferral) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	return t.exec(ctx, "referral", `
		INSERT INTO nurse_referrals (`+referralCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			doctor_notes = EXCLUDED.doctor_notes,
			nurse_report = EXCLUDED.nurse_report`,
		r.ID, r.UserID, r.ReferredBy, r.Reason, r.Status, r.ReferredAt,
		nullTime(r.CompletedAt), r.DoctorNotes, r.NurseReport)
}

func (t *pgTx) ListReferrals(ctx context.Context, f ReferralFilter) ([]*domain.NurseReferral, error) {
	w := &where{}
	w.addIf(f.UserID != "", "user_id = ?", f.UserID)
	w.addIf(f.ReferredBy != "", "referred_by = ?", f.ReferredBy)
	w.addIf(f.Status != "", "status = ?", f.Status)

	out := []*domain.NurseReferral{}
	err := t.list(ctx, "referrals", "nurse_referrals", "id", referralCols, w, func(s rowScanner) error {
		r, err := scanReferral(s)
		if err == nil {
			out = append(out, r)
		}
		return err
	})
	return out, err
}

// ============================================
// nurse_visits
// ============================================

const visitCols = `id, user_id, nurse_id, visit_type, referral_id, symptoms, visit_date, status,
	diagnosis, treatment, recommendations, follow_up_needed, follow_up_date`

func scanVisit(s rowScanner) (*domain.NurseVisit, error) {
	var v domain.NurseVisit
	var followUp sql.NullTime
	err := s.Scan(&v.ID, &v.UserID, &v.NurseID, &v.VisitType, &v.ReferralID, &v.Symptoms, &v.VisitDate,
		&v.Status, &v.Diagnosis, &v.Treatment, &v.Recommendations, &v.FollowUpNeeded, &followUp)
	if err != nil {
		return nil, err
	}
	v.FollowUpDate = timePtr(followUp)
	return &v, nil
}

func (t *pgTx) GetVisit(ctx context.Context, id string) (*domain.NurseVisit, error) {
	var out *domain.NurseVisit
	err := t.getOne(ctx, "visit", "nurse_visits", "id", visitCols, id, func(s rowScanner) (err error) {
		out, err = scanVisit(s)
		return err
	})
	return out, err
}

func (t *pgTx) PutVisit(ctx context.Context, v *domain.NurseVisit) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := v.Validate(); err != nil {
		return err
	}
	return t.exec(ctx, "visit", `
		INSERT INTO nurse_visits (`+visitCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			diagnosis = EXCLUDED.diagnosis,
			treatment = EXCLUDED.treatment,
			recommendations = EXCLUDED.recommendations,
			follow_up_needed = EXCLUDED.follow_up_needed,
			follow_up_date = EXCLUDED.follow_up_date`,
		v.ID, v.UserID, v.NurseID, v.VisitType, v.ReferralID, v.Symptoms, v.VisitDate, v.Status,
		v.Diagnosis, v.Treatment, v.Recommendations, v.FollowUpNeeded, nullTime(v.FollowUpDate))
}

func (t *pgTx) ListVisits(ctx context.Context, f VisitFilter) ([]*domain.NurseVisit, error) {
	w := &where{}
	w.addIf(f.UserID != "", "user_id = ?", f.UserID)
	w.addIf(f.NurseID != "", "nurse_id = ?", f.NurseID)
	w.addIf(f.Status != "", "status = ?", f.Status)
	w.addIf(f.Type != "", "visit_type = ?", f.Type)

	out := []*domain.NurseVisit{}
	err := t.list(ctx, "visits", "nurse_visits", "id", visitCols, w, func(s rowScanner) error {
		v, err := scanVisit(s)
		if err == nil {
			out = append(out, v)
		}
		return err
	})
	return out, err
}

// ============================================
// rooms
// ============================================

const roomCols = `id, room_number, building, floor, gender, max_occupancy, current_occupancy, occupant_ids`

func scanRoom(s rowScanner) (*domain.Room, error) {
	var r domain.Room
	err := s.Scan(&r.ID, &r.RoomNumber, &r.Building, &r.Floor, &r.Gender, &r.MaxOccupancy,
		&r.CurrentOccupancy, pq.Array(&r.OccupantIDs))
	if err != nil {
		return nil, err
	}
	if r.OccupantIDs == nil {
		r.OccupantIDs = []string{}
	}
	return &r, nil
}

func (t *pgTx) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	var out *domain.Room
	err := t.getOne(ctx, "room", "rooms", "id", roomCols, id, func(s rowScanner) (err error) {
		out, err = scanRoom(s)
		return err
	})
	return out, err
}

func (t *pgTx) PutRoom(ctx context.Context, r *domain.Room) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	occupants := r.OccupantIDs
	if occupants == nil {
		occupants = []string{}
	}
	return t.exec(ctx, "room", `
		INSERT INTO rooms (`+roomCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			room_number = EXCLUDED.room_number,
			building = EXCLUDED.building,
			floor = EXCLUDED.floor,
			gender = EXCLUDED.gender,
			max_occupancy = EXCLUDED.max_occupancy,
			current_occupancy = EXCLUDED.current_occupancy,
			occupant_ids = EXCLUDED.occupant_ids`,
		r.ID, r.RoomNumber, r.Building, r.Floor, r.Gender, r.MaxOccupancy, r.CurrentOccupancy, pq.Array(occupants))
}

func (t *pgTx) ListRooms(ctx context.Context, f RoomFilter) ([]*domain.Room, error) {
	w := &where{}
	w.addIf(f.Gender != "", "gender = ?", f.Gender)
	w.addIf(f.OccupantID != "", "? = ANY(occupant_ids)", f.OccupantID)
	if f.HasVacancy != nil {
		if *f.HasVacancy {
			w.conds = append(w.conds, "current_occupancy < max_occupancy")
		} else {
			w.conds = append(w.conds, "current_occupancy >= max_occupancy")
		}
	}

	out := []*domain.Room{}
	err := t.list(ctx, "rooms", "rooms", "id", roomCols, w, func(s rowScanner) error {
		r, err := scanRoom(s)
		if err == nil {
			out = append(out, r)
		}
		return err
	})
	return out, err
}

// ============================================
// lockers
// ============================================

const lockerCols = `id, locker_number, location, size, status, assigned_user_id`

func scanLocker(s rowScanner) (*domain.Locker, error) {
	var l domain.Locker
	if err := s.Scan(&l.ID, &l.LockerNumber, &l.Location, &l.Size, &l.Status, &l.AssignedUserID); err != nil {
		return nil, err
	}
	return &l, nil
}

func (t *pgTx) GetLocker(ctx context.Context, id string) (*domain.Locker, error) {
	var out *domain.Locker
	err := t.getOne(ctx, "locker", "lockers", "id", lockerCols, id, func(s rowScanner) (err error) {
		out, err = scanLocker(s)
		return err
	})
	return out, err
}

func (t *pgTx) PutLocker(ctx context.Context, l *domain.Locker) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := l.Validate(); err != nil {
		return err
	}
	return t.exec(ctx, "locker", `
		INSERT INTO lockers (`+lockerCols+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			locker_number = EXCLUDED.locker_number,
			location = EXCLUDED.location,
			size = EXCLUDED.size,
			status = EXCLUDED.status,
			assigned_user_id = EXCLUDED.assigned_user_id`,
		l.ID, l.LockerNumber, l.Location, l.Size, l.Status, l.AssignedUserID)
}

func (t *pgTx) ListLockers(ctx context.Context, f LockerFilter) ([]*domain.Locker, error) {
	w := &where{}
	w.addIf(f.Status != "", "status = ?", f.Status)
	w.addIf(f.AssignedUserID != "", "assigned_user_id = ?", f.AssignedUserID)

	out := []*domain.Locker{}
	err := t.list(ctx, "lockers", "lockers", "id", lockerCols, w, func(s rowScanner) error {
		l, err := scanLocker(s)
		if err == nil {
			out = append(out, l)
		}
		return err
	})
	return out, err
}
