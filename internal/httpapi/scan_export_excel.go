package httpapi

import (
	"bytes"
	"fmt"
	"time"

	"attendsync/internal/models"

	"github.com/xuri/excelize/v2"
)

// ScanEventExportHeader 打卡事件导出表头
var ScanEventExportHeader = []string{
	"Event ID",
	"Device ID",
	"Enroll ID",
	"Staff ID",
	"Scanned At",
	"Date",
	"Time",
	"Type",
}

// GenerateScanEventExport 生成打卡事件导出 Excel 文件
// events 为空时只生成表头。
func GenerateScanEventExport(events []models.RawScanEvent) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	sheetName := "Scan Events"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	// 删除默认的 Sheet1
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	// 表头样式
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range ScanEventExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, err
		}
	}

	for i, event := range events {
		staffID := ""
		if event.StaffID != nil {
			staffID = *event.StaffID
		}
		values := []any{
			event.ID,
			event.DeviceID,
			event.EnrollID,
			staffID,
			event.ScannedAt.Format(time.RFC3339),
			event.Date,
			event.Time,
			event.Type,
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				f.Close()
				return nil, err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				f.Close()
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write excel file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
