package mysql

import (
	"errors"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
)

// ER_DUP_ENTRY
const errDuplicateEntry = 1062

// dashIfEmpty returns "-" when the input is empty/whitespace
func dashIfEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func isDuplicate(err error) bool {
	var me *mysqldriver.MySQLError
	return errors.As(err, &me) && me.Number == errDuplicateEntry
}
