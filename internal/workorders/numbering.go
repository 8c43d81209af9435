package workorders

import (
	"fmt"
	"time"
)

// FormatNumber renders WO-YYYYMMDD-NNNN. The sequence widens past 9999.
func FormatNumber(day time.Time, seq int64) string {
	return fmt.Sprintf("WO-%s-%04d", day.Format("20060102"), seq)
}
