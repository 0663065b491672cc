// Package export renders the scorer-by-target score matrix as an Excel
// workbook for offline archival.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/zhangwb/kaohe/internal/models"
)

// ExcelBuilder writes score matrices into xlsx workbooks.
type ExcelBuilder struct {
	logger *zap.Logger
}

// NewExcelBuilder creates an Excel builder.
func NewExcelBuilder(logger *zap.Logger) *ExcelBuilder {
	return &ExcelBuilder{logger: logger}
}

// Build renders one task's matrix: a header of target names in canonical
// order, one row per scorer with their scores and remarks, and a signature
// column marking who signed their submission. targets must already be in
// canonical order.
func (b *ExcelBuilder) Build(task *models.Task, targets []models.Target, rows []models.ExportRow) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := "评分明细"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}

	header := []interface{}{"评分人", "角色"}
	for _, t := range targets {
		header = append(header, t.Name)
	}
	header = append(header, "签名")
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range rows {
		cells := []interface{}{row.ScorerName, roleLabel(row.ScorerRole)}
		for _, t := range targets {
			cell := row.Scores[t.ID]
			if !cell.Submitted || cell.Score == nil {
				cells = append(cells, "")
				continue
			}
			if cell.Remark != nil && *cell.Remark != "" {
				cells = append(cells, fmt.Sprintf("%d（%s）", *cell.Score, *cell.Remark))
			} else {
				cells = append(cells, *cell.Score)
			}
		}
		if row.Signature != nil && *row.Signature != "" {
			cells = append(cells, "已签名")
		} else {
			cells = append(cells, "未签名")
		}

		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("failed to compute cell name: %w", err)
		}
		if err := f.SetSheetRow(sheet, axis, &cells); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	b.logger.Debug("Built export workbook",
		zap.Int64("task_id", task.ID),
		zap.Int("scorers", len(rows)),
		zap.Int("targets", len(targets)))
	return f, nil
}

func roleLabel(role models.Role) string {
	switch role {
	case models.RoleLeader:
		return "领导班子"
	case models.RoleManager:
		return "负责人"
	default:
		return string(role)
	}
}
