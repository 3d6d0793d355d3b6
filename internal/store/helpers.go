package store

import (
	"database/sql"
	"strconv"
)

func affectedOne(result sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func itoa(value int) string {
	return strconv.Itoa(value)
}
