package importer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Canonical column names.
const (
	ColName            = "name"
	ColNationalID      = "national_id"
	ColSerialNumber    = "serial_number"
	ColDepartment      = "department"
	ColJobGrade        = "job_grade"
	ColHireDate        = "hiring_date"
	ColVacationBalance = "vacation_balance"
)

// headerAliases maps Arabic and English sheet headers to canonical names.
var headerAliases = map[string]string{
	"الاسم":           ColName,
	"الرقم الوطني":    ColNationalID,
	"الرقم الآلي":     ColSerialNumber,
	"القسم":           ColDepartment,
	"الدرجة الوظيفية": ColJobGrade,
	"الدرجة":          ColJobGrade,
	"تاريخ التعيين":   ColHireDate,
	"رصيد الإجازات":   ColVacationBalance,

	ColName:            ColName,
	ColNationalID:      ColNationalID,
	ColSerialNumber:    ColSerialNumber,
	ColDepartment:      ColDepartment,
	ColJobGrade:        ColJobGrade,
	ColHireDate:        ColHireDate,
	"hire_date":        ColHireDate,
	ColVacationBalance: ColVacationBalance,
}

// mapHeaders returns canonical column name -> column index. Unknown headers
// are ignored; the first occurrence of a column wins.
func mapHeaders(header []string) map[string]int {
	out := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		key = strings.ReplaceAll(key, " ", "_")
		canon, ok := headerAliases[key]
		if !ok {
			canon, ok = headerAliases[strings.TrimSpace(h)]
		}
		if !ok {
			continue
		}
		if _, dup := out[canon]; !dup {
			out[canon] = i
		}
	}
	return out
}

// normalizeDate converts the spreadsheet date forms seen in practice to
// YYYY-MM-DD:
//
//	2024-3-1, 2024-03-01 10:00  -> 2024-03-01
//	3/1/2024                    -> 2024-03-01 (month first)
//	01-03-2024                  -> 2024-03-01 (day first)
//	45352 (Excel serial)        -> 2024-03-01
//
// Anything else is returned trimmed and unchanged; accrual skips employees
// whose hire date does not parse.
func normalizeDate(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 && serial < 100000 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t.Format("2006-01-02")
		}
	}

	part := strings.Fields(s)[0]
	switch {
	case strings.Count(part, "/") == 2:
		p := strings.Split(part, "/")
		if len(p[2]) == 4 {
			return fmt.Sprintf("%s-%s-%s", p[2], pad2(p[0]), pad2(p[1]))
		}
	case strings.Count(part, "-") == 2:
		p := strings.Split(part, "-")
		if len(p[0]) == 4 {
			return fmt.Sprintf("%s-%s-%s", p[0], pad2(p[1]), pad2(p[2]))
		}
		if len(p[2]) == 4 {
			return fmt.Sprintf("%s-%s-%s", p[2], pad2(p[1]), pad2(p[0]))
		}
	}
	return s
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// digitsOnly strips everything but ASCII digits, so "1234 5678 9012" and a
// numeric cell rendered as "123456789012" both normalize.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// cell returns the trimmed value at column col, or "" when absent.
func cell(row []string, cols map[string]int, col string) string {
	i, ok := cols[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
