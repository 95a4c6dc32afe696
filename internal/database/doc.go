// Package database provides the PostgreSQL connection pool used by the
// postgres session driver.
package database
