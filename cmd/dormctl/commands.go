package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"dorm-engine/internal/app"
	"dorm-engine/internal/domain"
	rediscommon "dorm-engine/internal/redis"
	"dorm-engine/internal/repository"
	"dorm-engine/internal/seed"
	"dorm-engine/internal/service"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// cli 单次命令执行的上下文
type cli struct {
	app    *app.App
	actor  domain.Actor
	out    io.Writer
	logger *zap.Logger
}

type command struct {
	name       string
	summary    string
	needsActor bool
	run        func(ctx context.Context, c *cli, args []string) error
}

var commands = []command{
	{"seed", "load a YAML dataset into the store", false, runSeed},

	{"resident register", "register a resident", true, runResidentRegister},
	{"resident get", "show one resident", true, runResidentGet},
	{"resident list", "list residents in scope", true, runResidentList},
	{"resident max-passes", "change a resident's pass quota", true, runResidentMaxPasses},
	{"campus set", "override a resident's campus status", true, runCampusSet},

	{"gatepass request", "request a gate pass", true, runGatePassRequest},
	{"gatepass decide", "approve or reject a gate pass", true, runGatePassDecide},
	{"gatepass confirm", "confirm a gate pass was used at the gate", true, runGatePassConfirm},
	{"gatepass list", "list gate passes in scope", true, runGatePassList},
	{"gatepass active", "list approved, unused gate passes", true, runGatePassActive},

	{"leave request", "request a leave", true, runLeaveRequest},
	{"leave decide", "approve or reject a leave", true, runLeaveDecide},
	{"leave list", "list leaves in scope", true, runLeaveList},
	{"leave active", "list leaves in progress today", true, runLeaveActive},

	{"referral create", "refer a resident to the nurse", true, runReferralCreate},
	{"referral complete", "complete a referral with a nurse report", true, runReferralComplete},
	{"referral abort", "abort a pending referral", true, runReferralAbort},
	{"referral list", "list referrals in scope", true, runReferralList},
	{"referral stats", "count referrals by status", true, runReferralStats},

	{"visit schedule", "open a nurse visit", true, runVisitSchedule},
	{"visit close", "complete or cancel a nurse visit", true, runVisitClose},
	{"visit list", "list nurse visits in scope", true, runVisitList},

	{"room create", "create a room", true, runRoomCreate},
	{"room capacity", "change a room's capacity", true, runRoomCapacity},
	{"room assign", "assign a resident to a room", true, runRoomAssign},
	{"room vacate", "move a resident out of their room", true, runRoomVacate},
	{"room list", "list rooms in scope", true, runRoomList},

	{"locker create", "create a locker", true, runLockerCreate},
	{"locker assign", "assign a locker to a resident", true, runLockerAssign},
	{"locker unassign", "release a resident's locker", true, runLockerUnassign},
	{"locker status", "set a free locker's status", true, runLockerStatus},
	{"locker list", "list lockers in scope", true, runLockerList},
	{"occupancy", "room and locker occupancy", true, runOccupancy},

	{"notify deploy", "publish a notification (empty --user broadcasts)", true, runNotifyDeploy},
	{"notify list", "list visible notifications", true, runNotifyList},
	{"notify read", "mark one (or --all) notifications read", true, runNotifyRead},
	{"notify remove", "remove a notification", true, runNotifyRemove},
	{"notify clear", "remove all of the actor's own notifications", true, runNotifyClear},
	{"notify unread", "count unread notifications", true, runNotifyUnread},
	{"notify watch", "follow live notifications via MQTT or Redis Stream", true, runNotifyWatch},

	{"dashboard", "role-scoped dashboard statistics", true, runDashboard},
}

// lookup 先匹配两级命令（如 "gatepass request"），再匹配一级命令
func lookup(args []string) (command, []string, error) {
	if len(args) >= 2 {
		name := args[0] + " " + args[1]
		for _, cmd := range commands {
			if cmd.name == name {
				return cmd, args[2:], nil
			}
		}
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd, args[1:], nil
		}
	}
	return command{}, nil, fmt.Errorf("unknown command %q", strings.Join(args[:min(len(args), 2)], " "))
}

func newFlags(name string) *pflag.FlagSet {
	return pflag.NewFlagSet(name, pflag.ContinueOnError)
}

// parse 解析子命令参数并校验位置参数个数
func parse(fs *pflag.FlagSet, args []string, positional ...string) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() < len(positional) {
		return nil, fmt.Errorf("%s: missing argument <%s>", fs.Name(), positional[fs.NArg()])
	}
	return fs.Args(), nil
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseTime 接受 2006-01-02 或 RFC3339
func parseTime(flag, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q: use YYYY-MM-DD or RFC3339", flag, s)
	}
	return t, nil
}

func parseDecision(s string) (domain.Decision, error) {
	d, ok := domain.ParseDecision(s)
	if !ok {
		return "", fmt.Errorf("invalid decision %q: must be approve or reject", s)
	}
	return d, nil
}

func runSeed(ctx context.Context, c *cli, args []string) error {
	fs := newFlags("seed")
	rest, err := parse(fs, args, "file")
	if err != nil {
		return err
	}
	ds, err := seed.LoadFile(rest[0])
	if err != nil {
		return err
	}
	if err := seed.Apply(ctx, c.app.Store, ds); err != nil {
		return err
	}
	return c.print(ds.Counts())
}

// ---------- residents ----------

func runResidentRegister(ctx context.Context, c *cli, args []string) error {
	var req service.RegisterResidentRequest
	var gender, status string
	maxPasses := -1
	fs := newFlags("resident register")
	fs.StringVar(&req.UserID, "user", "", "resident user id")
	fs.StringVar(&req.FirstName, "first-name", "", "first name")
	fs.StringVar(&req.LastName, "last-name", "", "last name")
	fs.StringVar(&gender, "gender", "", "male | female | other")
	fs.StringVar(&status, "status", "", "residential | non_residential")
	fs.IntVar(&maxPasses, "max-passes", -1, "pass quota (default from config)")
	if _, err := parse(fs, args); err != nil {
		return err
	}
	req.Gender = domain.Gender(gender)
	req.ResidentialStatus = domain.ResidentialStatus(status)
	if maxPasses >= 0 {
		req.MaxPasses = &maxPasses
	}
	r, err := c.app.Engine.Residents.RegisterResident(ctx, c.actor, req)
	if err != nil {
		return err
	}
	return c.print(r)
}

func runResidentGet(ctx context.Context, c *cli, args []string) error {
	rest, err := parse(newFlags("resident get"), args, "resident-id")
	if err != nil {
		return err
	}
	r, err := c.app.Engine.Residents.GetResident(ctx, c.actor, rest[0])
	if err != nil {
		return err
	}
	return c.print(r)
}

func runResidentList(ctx context.Context, c *cli, args []string) error {
	var f repository.ResidentFilter
	var gender, campus string
	fs := newFlags("resident list")
	fs.StringVar(&gender, "gender", "", "filter by gender")
	fs.StringVar(&campus, "campus", "", "filter by campus status")
	fs.StringVar(&f.RoomID, "room", "", "filter by room id")
	if _, err := parse(fs, args); err != nil {
		return err
	}
	f.Gender = domain.Gender(gender)
	f.CampusStatus = domain.CampusStatus(campus)
	out, err := c.app.Engine.Residents.ListResidents(ctx, c.actor, f)
	if err != nil {
		return err
	}
	return c.print(out)
}

func runResidentMaxPasses(ctx context.Context, c *cli, args []string) error {
	rest, err := parse(newFlags("resident max-passes"), args, "resident-id", "max-passes")
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(rest[1])
	if err != nil {
		return fmt.Errorf("invalid max-passes %q", rest[1])
	}
	r, err := c.app.Engine.Residents.SetMaxPasses(ctx, c.actor, rest[0], n)
	if err != nil {
		return err
	}
	return c.print(r)
}

func runCampusSet(ctx context.Context, c *cli, args []string) error {
	rest, err := parse(newFlags("campus set"), args, "resident-id", "on_campus|off_campus")
	if err != nil {
		return err
	}
	r, err := c.app.Engine.Residents.SetCampusStatus(ctx, c.actor, rest[0], domain.CampusStatus(rest[1]))
	if err != nil {
		return err
	}
	return c.print(r)
}

// ---------- gate passes ----------

func runGatePassRequest(ctx context.Context, c *cli, args []string) error {
	var req service.RequestGatePassRequest
	var depart, ret string
	fs := newFlags("gatepass request")
	fs.StringVar(&req.UserID, "user", "", "resident user id (defaults to --as-user)")
	fs.StringVar(&req.Destination, "destination", "", "destination")
	fs.StringVar(&req.Reason, "reason", "", "reason")
	fs.StringVar(&depart, "depart", "", "departure date")
	fs.StringVar(&ret, "return", "", "return date")
	if _, err := parse(fs, args); err != nil {
		return err
	}
	if req.UserID == "" {
		req.UserID = c.actor.UserID
	}
	var err error
	if req.DepartureDate, err = parseTime("depart", depart); err != nil {
		return err
	}
	if req.ReturnDate, err = parseTime("return", ret); err != nil {
		return err
	}
	p, err := c.app.Engine.GatePasses.RequestGatePass(ctx, c.actor, req)
	if err != nil {
		return err
	}
	return c.print(p)
}

func runGatePassDecide(ctx context.Context, c *cli, args []string) error {
	var reason string
	fs := newFlags("gatepass decide")
	fs.StringVar(&reason, "reason", "", "rejection reason")
	rest, err := parse(fs, args, "pass-id", "approve|reject")
	if err != nil {
		return err
	}
	d, err := parseDecision(rest[1])
	if err != nil {
		return err
	}
	p, err := c.app.Engine.GatePasses.DecideGatePass(ctx, c.actor, service.DecideGatePassRequest{
		PassID: rest[0], Decision: d, RejectionReason: reason,
	})
	if err != nil {
		return err
	}
	return c.print(p)
}

func runGatePassConfirm(ctx context.Context, c *cli, args []string) error {
	used := true
	fs := newFlags("gatepass confirm")
	fs.BoolVar(&used, "used", true, "mark the pass used (false clears the flag)")
	rest, err := parse(fs, args, "pass-id")
	if err != nil {
		return err
	}
	p, err := c.app.Engine.GatePasses.ConfirmUsage(ctx, c.actor, service.ConfirmUsageRequest{PassID: rest[0], IsUsed: used})
	if err != nil {
		return err
	}
	return c.print(p)
}

func runGatePassList(ctx context.Context, c *cli, args []string) error {
	var f repository.GatePassFilter
	var status string
	fs := newFlags("gatepass list")
	fs.StringVar(&f.UserID, "user", "", "filter by resident")
	fs.StringVar(&status, "status", "", "pending | approved | rejected")
	if _, err := parse(fs, args); err != nil {
		return err
	}
	f.Status = domain.Status(status)
	out, err := c.app.Engine.GatePasses.ListGatePasses(ctx, c.actor, f)
	if err != nil {
		return err
	}
	return c.print(out)
}

func runGatePassActive(ctx context.Context, c *cli, args []string) error {
	if _, err := parse(newFlags("gatepass active"), args); err != nil {
		return err
	}
	out, err := c.app.Engine.GatePasses.ActiveGatePasses(ctx, c.actor)
	if err != nil {
		return err
	}
	return c.print(out)
}

// ---------- leaves ----------

func runLeaveRequest(ctx context.Context, c *cli, args []string) error {
	var req service.RequestLeaveRequest
	var leaveType, start, end string
	fs := newFlags("leave request")
	fs.StringVar(&req.UserID, "user", "", "resident user id (defaults to --as-user)")
	fs.StringVar(&leaveType, "type", "", "sick | vacation | emergency | other")
	fs.StringVar(&start, "start", "", "first day")
	fs.StringVar(&end, "end", "", "last day")
	fs.StringVar(&req.Reason, "reason", "", "reason")
	if _, err := parse(fs, args); err != nil {
		return err
	}
	if req.UserID == "" {
		req.UserID = c.actor.UserID
	}
	req.Type = domain.LeaveType(leaveType)
	var err error
	if req.StartDate, err = parseTime("start", start); err != nil {
		return err
	}
	if req.EndDate, err = parseTime("end", end); err != nil {
		return err
	}
	l, err := c.app.Engine.Leaves.RequestLeave(ctx, c.actor, req)
	if err != nil {
		return err
	}
	return c.print(l)
}

func runLeaveDecide(ctx context.Context, c *cli, args []string) error {
	var comments string
	fs := newFlags("leave decide")
	fs.StringVar(&comments, "comments", "", "decision comments")
	rest, err := parse(fs, args, "leave-id", "approve|reject")
	if err != nil {
		return err
	}
	d, err := parseDecision(rest[1])
	if err != nil {
		return err
	}
	l, err := c.app.Engine.Leaves.DecideLeave(ctx, c.actor, service.DecideLeaveRequest{
		LeaveID: rest[0], Decision: d, Comments: comments,
	})
	if err != nil {
		return err
	}
	return c.print(l)
}

func runLeaveList(ctx context.Context, c *cli, args []string) error {
	var f repository.LeaveFilter
	var status, leaveType string
	fs := newFlags("leave list")
	fs.StringVar(&f.UserID, "user", "", "filter by resident")
	fs.StringVar(&status, "status", "", "pending | approved | rejected")
	fs.StringVar(&leaveType, "type", "", "filter by leave type")
	if _, err := parse(fs, args); err != nil {
		return err
	}
	f.Status = domain.Status(status)
	f.Type = domain.LeaveType(leaveType)
	out, err := c.app.Engine.Leaves.ListLeaves(ctx, c.actor, f)
	if err != nil {
		return err
	}
	return c.print(out)
}

func runLeaveActive(ctx context.Context, c *cli, args []string) error {
	if _, err := parse(newFlags("leave active"), args); err != nil {
		return err
	}
	out, err := c.app.Engine.Leaves.ActiveLeaves(ctx, c.actor)
	if err != nil {
		return err
	}
	return c.print(out)
}

// ---------- medical ----------

func runReferralCreate(ctx context.Context, c *cli, args []string) error {
	var req service.CreateReferralRequest
	fs := newFlags("referral create")
	fs.StringVar(&req.UserID, "user", "", "resident user id")
	fs.StringVar(&req.Reason, "reason", "", "referral reason")
	if _, err := parse(fs, args); err != nil {
		return err
	}
	r, err := c.app.Engine.Medical.CreateReferral(ctx, c.actor, req)
	if err != nil {
		return err
	}
	return c.print(r)
}

func runReferralComplete(ctx context.Context, c *cli, args []string) error {
	req := service.CompleteReferralRequest{}
	fs := newFlags("referral complete")
	fs.StringVar(&req.NurseReport, "report", "", "nurse report")
	fs.StringVar(&req.DoctorNotes, "doctor-notes", "", "doctor notes")
	rest, err := parse(fs, args, "referral-id")
	if err != nil {
		return err
	}
	req.ReferralID = rest[0]
	r, err := c.app.Engine.Medical.CompleteReferral(ctx, c.actor, req)
	if err != nil {
		return err
	}
	return c.print(r)
}

func runReferralAbort(ctx context.Context, c *cli, args []string) error {
	rest, err := parse(newFlags("referral abort"), args, "referral-id")
	if err != nil {
		return err
	}
	r, err := c.app.Engine.Medical.AbortReferral(ctx, c.actor, rest[0])
	if err != nil {
		return err
	}
	return c.print(r)
}

func runReferralList(ctx context.Context, c *cli, args []string) error {
	var f repository.ReferralFilter
	var status string
	fs := newFlags("referral list")
	fs.StringVar(&f.UserID, "user", "", "filter by resident")
	fs.StringVar(&f.ReferredBy, "referred-by", "", "filter by referrer")
	fs.StringVar(&status, "status", "", "pending | completed | aborted")
	if _, err := parse(fs, args); err != nil {
		return err
	}
	f.Status = domain.ReferralStatus(status)
	out, err := c.app.Engine.Medical.ListReferrals(ctx, c.actor, f)
	if err != nil {
		return err
	}
	return c.print(out)
}

func runReferralStats(ctx context.Context, c *cli, args []string) error {
	if _, err := parse(newFlags("referral stats"), args); err != nil {
		return err
	}
	out, err := c.app.Engine.Medical.ReferralStats(ctx, c.actor)
	if err != nil {
		return err
	}
	return c.print(out)
}

func runVisitSchedule(ctx context.Context, c *cli, args []string) error {
	var req service.ScheduleVisitRequest
	var visitType, date string
	fs := newFlags("visit schedule")
	fs.StringVar(&req.UserID, "user", "", "resident user id")
	fs.StringVar(&visitType, "type", "", "referral | walk_in | scheduled | emergency")
	fs.StringVar(&req.ReferralID, "referral", "", "referral id (referral visits only)")
	fs.StringVar(&req.Symptoms, "symptoms", "", "symptoms")
	fs.StringVar(&date, "date", "", "visit date (default now)")
	if _, err := parse(fs, args); err != nil {
		return err
	}
	req.VisitType = domain.VisitType(visitType)
	var err error
	if req.VisitDate, err = parseTime("date", date); err != nil {
		return err
	}
	v, err := c.app.Engine.Medical.ScheduleVisit(ctx, c.actor, req)
	if err != nil {
		return err
	}
	return c.print(v)
}

func runVisitClose(ctx context.Context, c *cli, args []string) error {
	var req service.CloseVisitRequest
	var followUp string
	fs := newFlags("visit close")
	fs.StringVar(&req.Diagnosis, "diagnosis", "", "diagnosis")
	fs.StringVar(&req.Treatment, "treatment", "", "treatment")
	fs.StringVar(&req.Recommendations, "recommendations", "", "recommendations")
	fs.BoolVar(&req.FollowUpNeeded, "follow-up", false, "a follow-up visit is needed")
	fs.StringVar(&followUp, "follow-up-date", "", "follow-up date (requires --follow-up)")
	rest, err := parse(fs, args, "visit-id", "completed|cancelled")
	if err != nil {
		return err
	}
	req.VisitID = rest[0]
	req.Outcome = domain.VisitStatus(rest[1])
	if followUp != "" {
		t, err := parseTime("follow-up-date", followUp)
		if err != nil {
			return err
		}
		req.FollowUpDate = &t
	}
	v, err := c.app.Engine.Medical.CloseVisit(ctx, c.actor, req)
	if err != nil {
		return err
	}
	return c.print(v)
}

func runVisitList(ctx context.Context, c *cli, args []string) error {
	var f repository.VisitFilter
	var status, visitType string
	fs := newFlags("visit list")
	fs.StringVar(&f.UserID, "user", "", "filter by resident")
	fs.StringVar(&f.NurseID, "nurse", "", "filter by nurse")
	fs.StringVar(&status, "status", "", "in_progress | completed | cancelled")
	fs.StringVar(&visitType, "type", "", "filter by visit type")
	if _, err := parse(fs, args); err != nil {
		return err
	}
	f.Status = domain.VisitStatus(status)
	f.Type = domain.VisitType(visitType)
	out, err := c.app.Engine.Medical.ListVisits(ctx, c.actor, f)
	if err != nil {
		return err
	}
	return c.print(out)
}

// ---------- rooms / lockers ----------

func runRoomCreate(ctx context.Context, c *cli, args []string) error {
	var req service.CreateRoomRequest
	var gender string
	fs := newFlags("room create")
	fs.StringVar(&req.RoomNumber, "number", "", "room number")
	fs.StringVar(&req.Building, "building", "", "building")
	fs.StringVar(&req.Floor, "floor", "", "floor")
	fs.StringVar(&gender, "gender", "", "male | female | other")
	fs.IntVar(&req.MaxOccupancy, "capacity", 0, "beds")
	rest, err := parse(fs, args, "room-id")
	if err != nil {
		return err
	}
	req.ID = rest[0]
	req.Gender = domain.Gender(gender)
	r, err := c.app.Engine.Residence.CreateRoom(ctx, c.actor, req)
	if err != nil {
		return err
	}
	return c.print(r)
}

func runRoomCapacity(ctx context.Context, c *cli, args []string) error {
	rest, err := parse(newFlags("room capacity"), args, "room-id", "capacity")
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(rest[1])
	if err != nil {
		return fmt.Errorf("invalid capacity %q", rest[1])
	}
	r, err := c.app.Engine.Residence.UpdateRoomCapacity(ctx, c.actor, rest[0], n)
	if err != nil {
		return err
	}
	return c.print(r)
}

func runRoomAssign(ctx context.Context, c *cli, args []string) error {
	rest, err := parse(newFlags("room assign"), args, "resident-id", "room-id")
	if err != nil {
		return err
	}
	out, err := c.app.Engine.Residence.AssignRoom(ctx, c.actor, rest[0], rest[1])
	if err != nil {
		return err
	}
	return c.print(out)
}

func runRoomVacate(ctx context.Context, c *cli, args []string) error {
	rest, err := parse(newFlags("room vacate"), args, "resident-id")
	if err != nil {
		return err
	}
	out, err := c.app.Engine.Residence.VacateRoom(ctx, c.actor, rest[0])
	if err != nil {
		return err
	}
	return c.print(out)
}

func runRoomList(ctx context.Context, c *cli, args []string) error {
	var f repository.RoomFilter
	var gender string
	var vacant bool
	fs := newFlags("room list")
	fs.StringVar(&gender, "gender", "", "filter by gender")
	fs.BoolVar(&vacant, "vacant", false, "only rooms with a free bed")
	if _, err := parse(fs, args); err != nil {
		return err
	}
	f.Gender = domain.Gender(gender)
	if vacant {
		f.HasVacancy = &vacant
	}
	out, err := c.app.Engine.Residence.ListRooms(ctx, c.actor, f)
	if err != nil {
		return err
	}
	return c.print(out)
}

func runLockerCreate(ctx context.Context, c *cli, args []string) error {
	var req service.CreateLockerRequest
	fs := newFlags("locker create")
	fs.StringVar(&req.LockerNumber, "number", "", "locker number")
	fs.StringVar(&req.Location, "location", "", "location")
	fs.StringVar(&req.Size, "size", "", "size")
	rest, err := parse(fs, args, "locker-id")
	if err != nil {
		return err
	}
	req.ID = rest[0]
	l, err := c.app.Engine.Residence.CreateLocker(ctx, c.actor, req)
	if err != nil {
		return err
	}
	return c.print(l)
}

func runLockerAssign(ctx context.Context, c *cli, args []string) error {
	rest, err := parse(newFlags("locker assign"), args, "resident-id", "locker-id")
	if err != nil {
		return err
	}
	out, err := c.app.Engine.Residence.AssignLocker(ctx, c.actor, rest[0], rest[1])
	if err != nil {
		return err
	}
	return c.print(out)
}

func runLockerUnassign(ctx context.Context, c *cli, args []string) error {
	rest, err := parse(newFlags("locker unassign"), args, "resident-id")
	if err != nil {
		return err
	}
	lockerID := ""
	if len(rest) > 1 {
		lockerID = rest[1]
	}
	out, err := c.app.Engine.Residence.UnassignLocker(ctx, c.actor, rest[0], lockerID)
	if err != nil {
		return err
	}
	return c.print(out)
}

func runLockerStatus(ctx context.Context, c *cli, args []string) error {
	rest, err := parse(newFlags("locker status"), args, "locker-id", "available|maintenance|reserved")
	if err != nil {
		return err
	}
	l, err := c.app.Engine.Residence.SetLockerStatus(ctx, c.actor, rest[0], domain.LockerStatus(rest[1]))
	if err != nil {
		return err
	}
	return c.print(l)
}

func runLockerList(ctx context.Context, c *cli, args []string) error {
	var f repository.LockerFilter
	var status string
	fs := newFlags("locker list")
	fs.StringVar(&status, "status", "", "filter by status")
	if _, err := parse(fs, args); err != nil {
		return err
	}
	f.Status = domain.LockerStatus(status)
	out, err := c.app.Engine.Residence.ListLockers(ctx, c.actor, f)
	if err != nil {
		return err
	}
	return c.print(out)
}

func runOccupancy(ctx context.Context, c *cli, args []string) error {
	if _, err := parse(newFlags("occupancy"), args); err != nil {
		return err
	}
	out, err := c.app.Engine.Residence.OccupancyStats(ctx, c.actor)
	if err != nil {
		return err
	}
	return c.print(out)
}

// ---------- notifications ----------

func runNotifyDeploy(ctx context.Context, c *cli, args []string) error {
	var req service.DeployRequest
	var notifType string
	fs := newFlags("notify deploy")
	fs.StringVar(&req.UserID, "user", "", "recipient (empty broadcasts)")
	fs.StringVar(&notifType, "type", "info", "info | success | warning | error")
	fs.StringVar(&req.Title, "title", "", "title")
	fs.StringVar(&req.Message, "message", "", "message")
	if _, err := parse(fs, args); err != nil {
		return err
	}
	req.Type = domain.NotificationType(notifType)
	n, err := c.app.Engine.Notifications.Deploy(ctx, c.actor, req)
	if err != nil {
		return err
	}
	return c.print(n)
}

func runNotifyList(ctx context.Context, c *cli, args []string) error {
	var unread bool
	var limit int
	fs := newFlags("notify list")
	fs.BoolVar(&unread, "unread", false, "only unread")
	fs.IntVar(&limit, "limit", 0, "max entries (0 = all)")
	if _, err := parse(fs, args); err != nil {
		return err
	}
	out, err := c.app.Engine.Notifications.List(ctx, c.actor, unread, limit)
	if err != nil {
		return err
	}
	return c.print(out)
}

func runNotifyRead(ctx context.Context, c *cli, args []string) error {
	var all bool
	fs := newFlags("notify read")
	fs.BoolVar(&all, "all", false, "mark every visible notification read")
	rest, err := parse(fs, args)
	if err != nil {
		return err
	}
	if all {
		n, err := c.app.Engine.Notifications.MarkAllRead(ctx, c.actor)
		if err != nil {
			return err
		}
		return c.print(map[string]int{"marked": n})
	}
	if len(rest) == 0 {
		return errors.New("notify read: missing argument <notification-id> (or --all)")
	}
	if err := c.app.Engine.Notifications.MarkRead(ctx, c.actor, rest[0]); err != nil {
		return err
	}
	return c.print(map[string]string{"read": rest[0]})
}

func runNotifyRemove(ctx context.Context, c *cli, args []string) error {
	rest, err := parse(newFlags("notify remove"), args, "notification-id")
	if err != nil {
		return err
	}
	if err := c.app.Engine.Notifications.Remove(ctx, c.actor, rest[0]); err != nil {
		return err
	}
	return c.print(map[string]string{"removed": rest[0]})
}

func runNotifyClear(ctx context.Context, c *cli, args []string) error {
	if _, err := parse(newFlags("notify clear"), args); err != nil {
		return err
	}
	n, err := c.app.Engine.Notifications.Clear(ctx, c.actor)
	if err != nil {
		return err
	}
	return c.print(map[string]int{"removed": n})
}

func runNotifyUnread(ctx context.Context, c *cli, args []string) error {
	if _, err := parse(newFlags("notify unread"), args); err != nil {
		return err
	}
	n, err := c.app.Engine.Notifications.UnreadCount(ctx, c.actor)
	if err != nil {
		return err
	}
	return c.print(map[string]int{"unread": n})
}

// runNotifyWatch 跟随实时通知直到收到退出信号；MQTT 优先，其次 Redis Stream 消费者组
func runNotifyWatch(ctx context.Context, c *cli, args []string) error {
	var group string
	fs := newFlags("notify watch")
	fs.StringVar(&group, "group", "dormctl", "Redis Stream consumer group")
	if _, err := parse(fs, args); err != nil {
		return err
	}

	emit := func(payload []byte) error {
		var n domain.Notification
		if err := json.Unmarshal(payload, &n); err != nil {
			return fmt.Errorf("failed to decode notification: %w", err)
		}
		if !n.VisibleTo(c.actor.UserID) {
			return nil
		}
		return c.print(&n)
	}

	switch {
	case c.app.MQTT != nil:
		mqttCfg := c.app.Config.Notify.MQTT
		err := c.app.MQTT.Subscribe(mqttCfg.Topic, mqttCfg.QoS, func(_ string, payload []byte) error {
			return emit(payload)
		})
		if err != nil {
			return err
		}
		<-ctx.Done()
		return nil

	case c.app.Redis != nil && c.app.Config.Notify.Stream != "":
		return tailStream(ctx, c, c.app.Config.Notify.Stream, group, emit)

	default:
		return errors.New("notify watch: enable MQTT or set NOTIFY_STREAM")
	}
}

func tailStream(ctx context.Context, c *cli, stream, group string, emit func([]byte) error) error {
	if err := rediscommon.EnsureGroup(ctx, c.app.Redis, stream, group); err != nil {
		return err
	}
	consumer, _ := os.Hostname()
	if consumer == "" {
		consumer = "dormctl"
	}
	for {
		msgs, err := rediscommon.ReadGroup(ctx, c.app.Redis, stream, group, consumer, 10, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read stream %s: %w", stream, err)
		}
		for _, m := range msgs {
			if err := emit(m.Data); err != nil {
				c.logger.Warn("Skipping stream message", zap.String("id", m.ID), zap.Error(err))
			}
			if err := rediscommon.Ack(ctx, c.app.Redis, stream, group, m.ID); err != nil {
				c.logger.Warn("Failed to ack stream message", zap.String("id", m.ID), zap.Error(err))
			}
		}
	}
}

func runDashboard(ctx context.Context, c *cli, args []string) error {
	if _, err := parse(newFlags("dashboard"), args); err != nil {
		return err
	}
	out, err := c.app.Engine.Dashboard.Stats(ctx, c.actor)
	if err != nil {
		return err
	}
	return c.print(out)
}
