// Package seed 从 YAML 加载初始数据集并在单个事务内写入 store
package seed

import (
	"context"
	"fmt"
	"io"
	"os"

	"dorm-engine/internal/domain"
	"dorm-engine/internal/repository"

	"gopkg.in/yaml.v3"
)

// Dataset 初始数据
type Dataset struct {
	Residents  []*domain.Resident      `yaml:"residents"`
	Rooms      []*domain.Room          `yaml:"rooms"`
	Lockers    []*domain.Locker        `yaml:"lockers"`
	GatePasses []*domain.GatePass      `yaml:"gate_passes"`
	Leaves     []*domain.Leave         `yaml:"leaves"`
	Referrals  []*domain.NurseReferral `yaml:"referrals"`
	Visits     []*domain.NurseVisit    `yaml:"visits"`
}

// Counts 各类实体数量
func (d *Dataset) Counts() map[string]int {
	return map[string]int{
		"residents":   len(d.Residents),
		"rooms":       len(d.Rooms),
		"lockers":     len(d.Lockers),
		"gate_passes": len(d.GatePasses),
		"leaves":      len(d.Leaves),
		"referrals":   len(d.Referrals),
		"visits":      len(d.Visits),
	}
}

// Load 解析 YAML；缺省字段补默认值
func Load(r io.Reader) (*Dataset, error) {
	var ds Dataset
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&ds); err != nil {
		if err == io.EOF {
			return &ds, nil
		}
		return nil, fmt.Errorf("failed to parse seed data: %w", err)
	}
	ds.normalize()
	return &ds, nil
}

// LoadFile 从文件加载
func LoadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func (d *Dataset) normalize() {
	for _, r := range d.Residents {
		if r.ResidentialStatus == "" {
			r.ResidentialStatus = domain.Residential
		}
		if r.CampusStatus == "" {
			r.CampusStatus = domain.OnCampus
		}
	}
	for _, r := range d.Rooms {
		if r.OccupantIDs == nil {
			r.OccupantIDs = []string{}
		}
		r.CurrentOccupancy = len(r.OccupantIDs)
	}
	for _, l := range d.Lockers {
		if l.Status == "" {
			if l.AssignedUserID != "" {
				l.Status = domain.LockerAssigned
			} else {
				l.Status = domain.LockerAvailable
			}
		}
	}
	for _, p := range d.GatePasses {
		if p.Status == "" {
			p.Status = domain.StatusPending
		}
	}
	for _, l := range d.Leaves {
		if l.Status == "" {
			l.Status = domain.StatusPending
		}
	}
	for _, r := range d.Referrals {
		if r.Status == "" {
			r.Status = domain.ReferralPending
		}
	}
	for _, v := range d.Visits {
		if v.Status == "" {
			v.Status = domain.VisitInProgress
		}
	}
}

// Apply 在一个事务内写入全部数据；任一实体违反不变量时整体回滚
// 同时检查住户与房间/储物柜的双向绑定是否一致
func Apply(ctx context.Context, store repository.Store, d *Dataset) error {
	if err := d.checkBindings(); err != nil {
		return err
	}
	return store.RunInTx(ctx, func(tx repository.Tx) error {
		for _, r := range d.Residents {
			if err := tx.PutResident(ctx, r); err != nil {
				return fmt.Errorf("resident %s: %w", r.UserID, err)
			}
		}
		for _, r := range d.Rooms {
			if err := tx.PutRoom(ctx, r); err != nil {
				return fmt.Errorf("room %s: %w", r.ID, err)
			}
		}
		for _, l := range d.Lockers {
			if err := tx.PutLocker(ctx, l); err != nil {
				return fmt.Errorf("locker %s: %w", l.ID, err)
			}
		}
		for _, p := range d.GatePasses {
			if err := tx.PutGatePass(ctx, p); err != nil {
				return fmt.Errorf("gate pass %s: %w", p.ID, err)
			}
		}
		for _, l := range d.Leaves {
			if err := tx.PutLeave(ctx, l); err != nil {
				return fmt.Errorf("leave %s: %w", l.ID, err)
			}
		}
		for _, r := range d.Referrals {
			if err := tx.PutReferral(ctx, r); err != nil {
				return fmt.Errorf("referral %s: %w", r.ID, err)
			}
		}
		for _, v := range d.Visits {
			if err := tx.PutVisit(ctx, v); err != nil {
				return fmt.Errorf("visit %s: %w", v.ID, err)
			}
		}
		return nil
	})
}

func (d *Dataset) checkBindings() error {
	const op = "seed"
	rooms := make(map[string]*domain.Room, len(d.Rooms))
	for _, r := range d.Rooms {
		rooms[r.ID] = r
	}
	lockers := make(map[string]*domain.Locker, len(d.Lockers))
	for _, l := range d.Lockers {
		lockers[l.ID] = l
	}
	for _, r := range d.Residents {
		if r.RoomID != "" {
			room, ok := rooms[r.RoomID]
			if !ok || !room.HasOccupant(r.UserID) {
				return domain.Errorf(domain.KindValidation, op, "resident %s is not listed in room %s", r.UserID, r.RoomID)
			}
			if room.Gender != r.Gender {
				return domain.Errorf(domain.KindGenderMismatch, op, "resident %s does not match room %s gender", r.UserID, r.RoomID)
			}
		}
		if r.LockerID != "" {
			l, ok := lockers[r.LockerID]
			if !ok || l.AssignedUserID != r.UserID {
				return domain.Errorf(domain.KindValidation, op, "locker %s is not assigned to resident %s", r.LockerID, r.UserID)
			}
		}
	}
	return nil
}
