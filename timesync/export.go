package timesync

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"bitbucket.org/mmdatafocus/timesync_backend/config"
	"bitbucket.org/mmdatafocus/timesync_backend/models"
)

// ExportConflictsHandler streams the pending conflict queue as an XLSX
// workbook, for operators who review conflicts outside the UI.
func ExportConflictsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())

		var conflicts []models.Conflict
		query := db.Order("created_at")
		status := c.DefaultQuery("status", models.ResolutionStatusPending)
		if status != "all" {
			query = query.Where("resolution_status = ?", status)
		}
		if err := query.Find(&conflicts).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		f := excelize.NewFile()
		sheet := "Conflicts"
		f.SetSheetName("Sheet1", sheet)

		headers := []string{"ID", "Detected", "Type", "Reason", "Detail", "Ticket", "Customer", "Activity", "DurationMin", "Status", "Action", "ResolvedBy"}
		for i, h := range headers {
			col, _ := excelize.ColumnNumberToName(i + 1)
			f.SetCellValue(sheet, col+"1", h)
		}

		for i, conflict := range conflicts {
			row := fmt.Sprint(i + 2)
			f.SetCellValue(sheet, "A"+row, conflict.ID)
			f.SetCellValue(sheet, "B"+row, conflict.CreatedAt.Format("2006-01-02 15:04"))
			f.SetCellValue(sheet, "C"+row, conflict.ConflictType)
			f.SetCellValue(sheet, "D"+row, conflict.ReasonCode)
			f.SetCellValue(sheet, "E"+row, conflict.ReasonDetail)
			f.SetCellValue(sheet, "F"+row, conflict.TicketReference)
			f.SetCellValue(sheet, "G"+row, conflict.CustomerName)
			f.SetCellValue(sheet, "H"+row, conflict.ActivityName)
			f.SetCellValue(sheet, "I"+row, conflict.DurationSeconds/60)
			f.SetCellValue(sheet, "J"+row, conflict.ResolutionStatus)
			f.SetCellValue(sheet, "K"+row, conflict.ResolutionAction)
			f.SetCellValue(sheet, "L"+row, conflict.ResolvedBy)
		}

		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=conflicts.xlsx")
		if err := f.Write(c.Writer); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to write workbook"})
		}
	}
}
