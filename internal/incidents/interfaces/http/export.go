package http

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	incident "homehub-cloud/internal/incidents/domain"
	"homehub-cloud/internal/observability/metrics"
	"homehub-cloud/internal/places"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const exportTimeLayout = time.RFC3339

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, place places.Context, format string) {
	started := time.Now()
	list, err := h.dispatcher.ListIncidents(r.Context(), place, h.maxList)
	if err != nil {
		metrics.ObserveHistoryExport(format, metrics.ResultError, time.Since(started))
		h.respondError(w, err)
		return
	}

	var (
		body        []byte
		contentType string
	)
	switch format {
	case "csv":
		body, err = BuildIncidentsCSV(list)
		contentType = "text/csv; charset=utf-8"
	case "xlsx":
		body, err = BuildIncidentsXLSX(place.PlaceID, list)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "pdf":
		body, err = BuildIncidentsPDF(place.PlaceID, list)
		contentType = "application/pdf"
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		metrics.ObserveHistoryExport(format, metrics.ResultError, time.Since(started))
		h.log.Warn("incident export failed",
			zap.String("place_id", place.PlaceID),
			zap.String("format", format),
			zap.Error(err))
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "incidents-"+place.PlaceID+"."+format))
	_, _ = w.Write(body)
	metrics.ObserveHistoryExport(format, metrics.ResultSuccess, time.Since(started))
}

// BuildIncidentsCSV renders the incident history as CSV.
func BuildIncidentsCSV(list []incident.Incident) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	_ = writer.Write([]string{
		"id",
		"place_id",
		"alerts",
		"alert_state",
		"platform_alert_state",
		"hub_alert_state",
		"monitoring_state",
		"confirmed",
		"monitored",
		"hub_alarm",
		"mock_incident",
		"cancelled_by",
		"start_time",
		"end_time",
	})
	for _, inc := range list {
		_ = writer.Write([]string{
			inc.ID,
			inc.PlaceID,
			joinAlerts(inc),
			string(inc.AlertState),
			string(inc.PlatformState),
			string(inc.HubState),
			string(inc.MonitoringState),
			strconv.FormatBool(inc.Confirmed),
			strconv.FormatBool(inc.Monitored),
			strconv.FormatBool(inc.HubAlarm),
			strconv.FormatBool(inc.MockIncident),
			inc.CancelledBy,
			formatExportTime(inc.StartTime),
			formatExportTime(inc.EndTime),
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildIncidentsXLSX renders the incident history as a workbook with one
// summary sheet and one tracker sheet.
func BuildIncidentsXLSX(placeID string, list []incident.Incident) ([]byte, error) {
	f := excelize.NewFile()
	incidentsSheet := "incidents"
	trackerSheet := "tracker"
	f.SetSheetName("Sheet1", incidentsSheet)
	f.NewSheet(trackerSheet)

	headers := []string{"ID", "Alerts", "State", "Platform", "Hub", "Monitoring", "Confirmed", "Cancelled By", "Start", "End"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(incidentsSheet, cell, header)
	}
	for i, inc := range list {
		row := i + 2
		values := []any{
			inc.ID,
			joinAlerts(inc),
			string(inc.AlertState),
			string(inc.PlatformState),
			string(inc.HubState),
			string(inc.MonitoringState),
			inc.Confirmed,
			inc.CancelledBy,
			formatExportTime(inc.StartTime),
			formatExportTime(inc.EndTime),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(incidentsSheet, cell, value)
		}
	}

	_ = f.SetCellValue(trackerSheet, "A1", "Incident")
	_ = f.SetCellValue(trackerSheet, "B1", "Time")
	_ = f.SetCellValue(trackerSheet, "C1", "State")
	_ = f.SetCellValue(trackerSheet, "D1", "Key")
	row := 2
	for _, inc := range list {
		for _, e := range inc.TrackerEvents {
			_ = f.SetCellValue(trackerSheet, fmt.Sprintf("A%d", row), inc.ID)
			_ = f.SetCellValue(trackerSheet, fmt.Sprintf("B%d", row), formatExportTime(e.Time))
			_ = f.SetCellValue(trackerSheet, fmt.Sprintf("C%d", row), string(e.State))
			_ = f.SetCellValue(trackerSheet, fmt.Sprintf("D%d", row), e.Key)
			row++
		}
	}
	_ = f.SetCellValue(trackerSheet, "F1", "Place")
	_ = f.SetCellValue(trackerSheet, "G1", placeID)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildIncidentsPDF renders the incident history as a PDF table.
func BuildIncidentsPDF(placeID string, list []incident.Incident) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Incident History")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Place: %s", placeID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().UTC().Format(exportTimeLayout)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(55, 6, "ID", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Alerts", "1", 0, "C", false, 0, "")
	pdf.CellFormat(28, 6, "State", "1", 0, "C", false, 0, "")
	pdf.CellFormat(32, 6, "Monitoring", "1", 0, "C", false, 0, "")
	pdf.CellFormat(42, 6, "Start", "1", 0, "C", false, 0, "")
	pdf.CellFormat(42, 6, "End", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, inc := range list {
		pdf.CellFormat(55, 6, inc.ID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 6, joinAlerts(inc), "1", 0, "L", false, 0, "")
		pdf.CellFormat(28, 6, string(inc.AlertState), "1", 0, "C", false, 0, "")
		pdf.CellFormat(32, 6, string(inc.MonitoringState), "1", 0, "C", false, 0, "")
		pdf.CellFormat(42, 6, formatExportTime(inc.StartTime), "1", 0, "C", false, 0, "")
		pdf.CellFormat(42, 6, formatExportTime(inc.EndTime), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func joinAlerts(inc incident.Incident) string {
	alerts := inc.Alerts()
	names := make([]string, 0, len(alerts))
	for _, a := range alerts {
		names = append(names, string(a))
	}
	return strings.Join(names, ",")
}

func formatExportTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(exportTimeLayout)
}
