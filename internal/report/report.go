// Package report 导出宿舍数据 Excel 报表（gate pass / leave / occupancy）
package report

import (
	"bytes"
	"context"
	"fmt"

	"dorm-engine/internal/domain"
	"dorm-engine/internal/repository"
	"dorm-engine/internal/service"

	"github.com/xuri/excelize/v2"
)

const (
	SheetGatePasses = "Gate Passes"
	SheetLeaves     = "Leaves"
	SheetOccupancy  = "Occupancy"
)

// Sheet 一个工作表：表头 + 数据行
type Sheet struct {
	Name    string
	Headers []string
	Widths  []float64
	Rows    [][]any
}

// Collect 按 actor 的查询范围收集三张表的数据
func Collect(ctx context.Context, e *service.Engine, actor domain.Actor) ([]Sheet, error) {
	passes, err := e.GatePasses.ListGatePasses(ctx, actor, repository.GatePassFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list gate passes: %w", err)
	}
	leaves, err := e.Leaves.ListLeaves(ctx, actor, repository.LeaveFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list leaves: %w", err)
	}
	rooms, err := e.Residence.ListRooms(ctx, actor, repository.RoomFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return []Sheet{GatePassSheet(passes), LeaveSheet(leaves), OccupancySheet(rooms)}, nil
}

// Export 收集数据并生成 xlsx
func Export(ctx context.Context, e *service.Engine, actor domain.Actor) ([]byte, error) {
	sheets, err := Collect(ctx, e, actor)
	if err != nil {
		return nil, err
	}
	return Build(sheets)
}

func GatePassSheet(passes []*domain.GatePass) Sheet {
	s := Sheet{
		Name: SheetGatePasses,
		Headers: []string{"Pass ID", "Resident", "Destination", "Reason", "Requested", "Departure", "Return",
			"Status", "Used", "Approved By", "Rejection Reason"},
		Widths: []float64{38, 15, 20, 25, 20, 12, 12, 10, 8, 15, 25},
	}
	for _, p := range passes {
		s.Rows = append(s.Rows, []any{
			p.ID, p.UserID, p.Destination, p.Reason,
			p.RequestDate.Format("2006-01-02") + " " + p.RequestTime,
			p.DepartureDate.Format("2006-01-02"), p.ReturnDate.Format("2006-01-02"),
			string(p.Status), yesNo(p.IsUsed), p.ApprovedBy, p.RejectionReason,
		})
	}
	return s
}

func LeaveSheet(leaves []*domain.Leave) Sheet {
	s := Sheet{
		Name:    SheetLeaves,
		Headers: []string{"Leave ID", "Resident", "Type", "Start", "End", "Status", "Approved By", "Comments"},
		Widths:  []float64{38, 15, 12, 12, 12, 10, 15, 30},
	}
	for _, l := range leaves {
		s.Rows = append(s.Rows, []any{
			l.ID, l.UserID, string(l.Type),
			l.StartDate.Format("2006-01-02"), l.EndDate.Format("2006-01-02"),
			string(l.Status), l.ApprovedBy, l.Comments,
		})
	}
	return s
}

func OccupancySheet(rooms []*domain.Room) Sheet {
	s := Sheet{
		Name:    SheetOccupancy,
		Headers: []string{"Room", "Building", "Floor", "Gender", "Occupancy", "Capacity", "Vacancy", "Occupants"},
		Widths:  []float64{12, 15, 8, 10, 10, 10, 8, 40},
	}
	for _, r := range rooms {
		occupants := ""
		for i, id := range r.OccupantIDs {
			if i > 0 {
				occupants += ", "
			}
			occupants += id
		}
		number := r.RoomNumber
		if number == "" {
			number = r.ID
		}
		s.Rows = append(s.Rows, []any{
			number, r.Building, r.Floor, string(r.Gender),
			r.CurrentOccupancy, r.MaxOccupancy, yesNo(r.HasVacancy()), occupants,
		})
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// Build 生成工作簿；空表只写表头
func Build(sheets []Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets to export")
	}
	f := excelize.NewFile()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for i, sh := range sheets {
		index, err := f.NewSheet(sh.Name)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create sheet %s: %w", sh.Name, err)
		}
		if i == 0 {
			f.SetActiveSheet(index)
		}
		if err := writeSheet(f, sh, headerStyle); err != nil {
			f.Close()
			return nil, err
		}
	}

	// 删除默认的 Sheet1
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sh Sheet, headerStyle int) error {
	for col, header := range sh.Headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sh.Name, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sh.Name, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
		if col < len(sh.Widths) {
			name, err := excelize.ColumnNumberToName(col + 1)
			if err != nil {
				return fmt.Errorf("failed to convert column number: %w", err)
			}
			if err := f.SetColWidth(sh.Name, name, name, sh.Widths[col]); err != nil {
				return fmt.Errorf("failed to set column width: %w", err)
			}
		}
	}

	for r, row := range sh.Rows {
		for c, value := range row {
			if value == nil || value == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sh.Name, cell, value); err != nil {
				return fmt.Errorf("failed to set cell %s on %s: %w", cell, sh.Name, err)
			}
		}
	}

	// 冻结表头
	if err := f.SetPanes(sh.Name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}
	return nil
}
