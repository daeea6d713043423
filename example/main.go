package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	_ "github.com/semihalev/go-orabridge"
)

type employee struct {
	ID     int64           `db:"EMPLOYEE_ID"`
	Name   string          `db:"LAST_NAME"`
	Salary sql.NullFloat64 `db:"SALARY"`
}

func main() {
	dsn := os.Getenv("ORABRIDGE_DSN")
	if dsn == "" {
		dsn = "oracle://hr:hr@localhost:1521/XEPDB1?fetch_array_size=200"
	}

	db, err := sqlx.Open("orabridge", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("failed to connect: %v", err)
	}

	// Query into structs
	var staff []employee
	err = db.Select(&staff, `SELECT employee_id, last_name, salary FROM employees WHERE department_id = :1 ORDER BY employee_id`, 90)
	if err != nil {
		log.Fatalf("failed to query employees: %v", err)
	}

	fmt.Println("ID\tName\tSalary")
	fmt.Println("--\t----\t------")
	for _, e := range staff {
		fmt.Printf("%d\t%s\t%.2f\n", e.ID, e.Name, e.Salary.Float64)
	}

	// PL/SQL with an OUT bind
	var total float64
	_, err = db.Exec(`BEGIN SELECT SUM(salary) INTO :1 FROM employees WHERE department_id = :2; END;`, sql.Out{Dest: &total}, 90)
	if err != nil {
		log.Fatalf("failed to run block: %v", err)
	}
	fmt.Printf("\nDepartment payroll: %.2f\n", total)

	// Transaction example
	tx, err := db.Beginx()
	if err != nil {
		log.Fatalf("failed to begin transaction: %v", err)
	}

	res, err := tx.Exec(`UPDATE employees SET salary = salary * 1.05 WHERE department_id = :1`, 90)
	if err != nil {
		tx.Rollback()
		log.Fatalf("failed to update in transaction: %v", err)
	}
	n, _ := res.RowsAffected()

	// Leave the sample schema as it was
	if err := tx.Rollback(); err != nil {
		log.Fatalf("failed to roll back: %v", err)
	}
	fmt.Printf("Rolled back a raise for %d employees\n", n)
}
