package sheets

import (
	"fmt"
	"strconv"
	"strings"

	"recargas/internal/core"
)

const dateLayout = "2006-01-02 15:04"

// Row renders r in Header order.
func Row(username string, r core.Recharge) []any {
	return []any{
		r.ID,
		username,
		r.UserID,
		r.Date.UTC().Format(dateLayout),
		r.Location,
		r.KWh,
		r.Cost,
		r.Odometer,
		r.Exempt,
		r.Notes,
	}
}

// RowID reads the id column of a sheet row. ok is false for header or blank rows.
func RowID(row []any) (int64, bool) {
	return cellInt(row, 0)
}

// RowUserID reads the user id column.
func RowUserID(row []any) (int64, bool) {
	return cellInt(row, 2)
}

func cellInt(row []any, i int) (int64, bool) {
	if i >= len(row) {
		return 0, false
	}
	s := strings.TrimSpace(fmt.Sprint(row[i]))
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// the API may hand numbers back as "12.0"
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int64(f)) {
			return 0, false
		}
		id = int64(f)
	}
	return id, id > 0
}
