package http

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBAdminHandler exposes read-only browsing of the entitlement tables for
// the admin console's data views. Unlike a generic browser it works off a
// fixed allowlist: the schema also holds processor identifiers that the
// console has no business paging through arbitrarily.
type DBAdminHandler struct {
	pool   *pgxpool.Pool
	schema string
}

func NewDBAdminHandler(pool *pgxpool.Pool, schema string) *DBAdminHandler {
	return &DBAdminHandler{pool: pool, schema: schema}
}

// browsableTables maps table name to its default sort column.
var browsableTables = map[string]string{
	"admin_grants":       "updated_at",
	"user_subscriptions": "updated_at",
	"user_roles":         "created_at",
	"admin_settings":     "updated_at",
	"documents":          "created_at",
	"entitlement_audit":  "created_at",
}

// Columns masked in output. Processor identifiers are not secrets in the
// cryptographic sense but have no place in a browsing UI.
var maskedColumns = []string{"password", "hash", "secret", "api_key", "token", "stripe_customer_id", "stripe_subscription_id"}

func isMaskedColumn(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range maskedColumns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// ListTables returns the browsable tables with approximate row counts.
// GET /tables
func (h *DBAdminHandler) ListTables(c *gin.Context) {
	rows, err := h.pool.Query(c.Request.Context(), `
		SELECT relname, COALESCE(n_live_tup, 0)::int
		FROM pg_stat_user_tables
		WHERE schemaname = $1
	`, h.schema)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		counts[name] = count
	}

	type tableInfo struct {
		Name     string `json:"name"`
		RowCount int    `json:"row_count"`
	}
	tables := []tableInfo{}
	for name := range browsableTables {
		tables = append(tables, tableInfo{Name: name, RowCount: counts[name]})
	}

	c.JSON(http.StatusOK, gin.H{"tables": tables})
}

// QueryRows returns paginated rows from an allowlisted table.
// GET /tables/:table/rows?page=1&page_size=50&user_id=
func (h *DBAdminHandler) QueryRows(c *gin.Context) {
	table := c.Param("table")
	sortCol, ok := browsableTables[table]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("table %q is not browsable", table)})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	userID := c.Query("user_id")

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}

	ctx := c.Request.Context()
	qualifiedTable := fmt.Sprintf("%q.%q", h.schema, table)

	whereSQL := ""
	var args []interface{}
	if userID != "" && table != "admin_settings" {
		whereSQL = "WHERE user_id::text = $1"
		args = append(args, userID)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", qualifiedTable, whereSQL)
	var total int
	if err := h.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	offset := (page - 1) * pageSize
	dataQuery := fmt.Sprintf("SELECT * FROM %s %s ORDER BY %q DESC LIMIT $%d OFFSET $%d",
		qualifiedTable, whereSQL, sortCol, len(args)+1, len(args)+2)
	args = append(args, pageSize, offset)

	dataRows, err := h.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer dataRows.Close()

	fields := dataRows.FieldDescriptions()
	results := []map[string]interface{}{}
	for dataRows.Next() {
		values, err := dataRows.Values()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		row := make(map[string]interface{}, len(fields))
		for i, fd := range fields {
			name := string(fd.Name)
			if isMaskedColumn(name) && values[i] != nil {
				row[name] = "***"
			} else {
				row[name] = formatValue(values[i])
			}
		}
		results = append(results, row)
	}

	c.JSON(http.StatusOK, gin.H{
		"table":     table,
		"rows":      results,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// formatValue converts pgx native types to JSON-friendly representations.
// In particular, [16]byte (UUID) is formatted as a standard UUID string.
func formatValue(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case [16]byte:
		h := hex.EncodeToString(val[:])
		return h[:8] + "-" + h[8:12] + "-" + h[12:16] + "-" + h[16:20] + "-" + h[20:]
	default:
		return v
	}
}
