package store

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trawlhq/trawl/internal/model"
)

// ProxyRepo wraps catalog.db and provides CRUD for proxy records.
// All writes are serialized by an internal mutex.
type ProxyRepo struct {
	db *sql.DB
	mu sync.Mutex
}

// NewProxyRepo creates a ProxyRepo for the given catalog.db connection.
func NewProxyRepo(db *sql.DB) *ProxyRepo {
	return &ProxyRepo{db: db}
}

const proxyColumns = "id, ip, port, protocol, country, source, valid, anonymity, last_checked_ns, avg_response_time_ms, created_at_ns, last_updated_ns"

func scanProxy(row interface{ Scan(...any) error }) (model.ProxyRecord, error) {
	var rec model.ProxyRecord
	err := row.Scan(&rec.ID, &rec.IP, &rec.Port, &rec.Protocol, &rec.Country, &rec.Source,
		&rec.Valid, &rec.Anonymity, &rec.LastCheckedNs, &rec.AvgResponseTimeMs,
		&rec.CreatedAtNs, &rec.LastUpdatedNs)
	return rec, err
}

// Upsert inserts a proxy by (ip, port, protocol) identity or refreshes an
// existing row. A nil country or source never erases a previously observed
// value. Returns the stored record.
func (r *ProxyRepo) Upsert(ip string, port uint16, protocol model.Protocol, country, source *string) (model.ProxyRecord, error) {
	r.mu.Lock()
	now := time.Now().UnixNano()
	_, err := r.db.Exec(`
		INSERT INTO proxies (id, ip, port, protocol, country, source, valid, created_at_ns, last_updated_ns)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(ip, port, protocol) DO UPDATE SET
			country         = COALESCE(excluded.country, country),
			source          = COALESCE(excluded.source, source),
			last_updated_ns = excluded.last_updated_ns
	`, uuid.NewString(), ip, port, string(protocol), country, source, now, now)
	r.mu.Unlock()
	if err != nil {
		return model.ProxyRecord{}, fmt.Errorf("upsert proxy %s:%d/%s: %w", ip, port, protocol, err)
	}

	row := r.db.QueryRow(
		"SELECT "+proxyColumns+" FROM proxies WHERE ip = ? AND port = ? AND protocol = ?",
		ip, port, string(protocol),
	)
	rec, err := scanProxy(row)
	if err != nil {
		return model.ProxyRecord{}, fmt.Errorf("read back proxy %s:%d/%s: %w", ip, port, protocol, err)
	}
	return rec, nil
}

// SetValidation records one validation run for a proxy. Anonymity and latency
// are per-run measurements and are overwritten even when nil. last_checked
// and last_updated are always refreshed.
func (r *ProxyRepo) SetValidation(id string, valid bool, anonymity *string, avgResponseTimeMs *float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UnixNano()
	res, err := r.db.Exec(`
		UPDATE proxies
		SET valid = ?, anonymity = ?, avg_response_time_ms = ?, last_checked_ns = ?, last_updated_ns = ?
		WHERE id = ?
	`, valid, anonymity, avgResponseTimeMs, now, now, id)
	if err != nil {
		return fmt.Errorf("set validation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Get returns one proxy by surrogate id, or sql.ErrNoRows.
func (r *ProxyRepo) Get(id string) (model.ProxyRecord, error) {
	row := r.db.QueryRow("SELECT "+proxyColumns+" FROM proxies WHERE id = ?", id)
	return scanProxy(row)
}

// FindByIdentity returns one proxy by (ip, port, protocol), or sql.ErrNoRows.
func (r *ProxyRepo) FindByIdentity(ip string, port uint16, protocol model.Protocol) (model.ProxyRecord, error) {
	row := r.db.QueryRow(
		"SELECT "+proxyColumns+" FROM proxies WHERE ip = ? AND port = ? AND protocol = ?",
		ip, port, string(protocol),
	)
	return scanProxy(row)
}

// UpdateMeta updates country and/or anonymity for a record. Nil fields are
// left untouched. Returns sql.ErrNoRows for unknown ids.
func (r *ProxyRepo) UpdateMeta(id string, country, anonymity *string) (model.ProxyRecord, error) {
	r.mu.Lock()
	now := time.Now().UnixNano()
	res, err := r.db.Exec(`
		UPDATE proxies
		SET country         = COALESCE(?, country),
		    anonymity       = COALESCE(?, anonymity),
		    last_updated_ns = ?
		WHERE id = ?
	`, country, anonymity, now, id)
	r.mu.Unlock()
	if err != nil {
		return model.ProxyRecord{}, fmt.Errorf("update proxy %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.ProxyRecord{}, err
	}
	if n == 0 {
		return model.ProxyRecord{}, sql.ErrNoRows
	}
	return r.Get(id)
}

// SetCountry overwrites the stored country for a record.
func (r *ProxyRepo) SetCountry(id, country string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(
		"UPDATE proxies SET country = ?, last_updated_ns = ? WHERE id = ?",
		country, time.Now().UnixNano(), id,
	)
	return err
}

// ListFilter narrows List results. Nil/empty fields are ignored.
type ListFilter struct {
	ValidOnly bool
	Country   string
	Protocol  model.Protocol
	Anonymity string
}

// Orderable columns for List.
const (
	OrderByAvgResponseTime = "avg_response_time_ms"
	OrderByLastChecked     = "last_checked"
	OrderByCreatedAt       = "created_at"
)

func (f ListFilter) whereClause() (string, []any) {
	var conds []string
	var args []any
	if f.ValidOnly {
		conds = append(conds, "valid = 1")
	}
	if f.Country != "" {
		conds = append(conds, "country = ?")
		args = append(args, strings.ToUpper(f.Country))
	}
	if f.Protocol != "" {
		conds = append(conds, "protocol = ?")
		args = append(args, string(f.Protocol))
	}
	if f.Anonymity != "" {
		conds = append(conds, "anonymity = ?")
		args = append(args, f.Anonymity)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// orderClause maps order_by/order to SQL. Nullable columns sort nulls first
// ascending and nulls last descending; unrecognized columns fall back to the
// store default (newest first).
func orderClause(orderBy, order string) string {
	dir := "ASC"
	if strings.EqualFold(order, "desc") {
		dir = "DESC"
	}
	nulls := "NULLS FIRST"
	if dir == "DESC" {
		nulls = "NULLS LAST"
	}
	switch orderBy {
	case OrderByAvgResponseTime:
		return fmt.Sprintf(" ORDER BY avg_response_time_ms %s %s", dir, nulls)
	case OrderByLastChecked:
		return fmt.Sprintf(" ORDER BY last_checked_ns %s %s", dir, nulls)
	case OrderByCreatedAt:
		return fmt.Sprintf(" ORDER BY created_at_ns %s", dir)
	default:
		return " ORDER BY created_at_ns DESC"
	}
}

// List returns one page of proxies plus the total row count under the filter.
// page is 1-based.
func (r *ProxyRepo) List(filter ListFilter, page, perPage int, orderBy, order string) ([]model.ProxyRecord, int, error) {
	where, args := filter.whereClause()

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM proxies"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count proxies: %w", err)
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}
	query := "SELECT " + proxyColumns + " FROM proxies" + where + orderClause(orderBy, order) +
		" LIMIT ? OFFSET ?"
	rows, err := r.db.Query(query, append(args, perPage, (page-1)*perPage)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list proxies: %w", err)
	}
	defer rows.Close()

	result := []model.ProxyRecord{}
	for rows.Next() {
		rec, err := scanProxy(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, rec)
	}
	return result, total, rows.Err()
}

// RandomFilter narrows PickRandom. Only valid proxies are considered.
type RandomFilter struct {
	Protocol          model.Protocol
	Country           string
	Anonymity         string
	MaxResponseTimeMs *float64
}

// PickRandom returns a uniformly random valid proxy matching the filter, or
// sql.ErrNoRows when none qualifies. A latency threshold excludes rows that
// were never timed.
func (r *ProxyRepo) PickRandom(filter RandomFilter) (model.ProxyRecord, error) {
	conds := []string{"valid = 1"}
	var args []any
	if filter.Protocol != "" {
		conds = append(conds, "protocol = ?")
		args = append(args, string(filter.Protocol))
	}
	if filter.Country != "" {
		conds = append(conds, "country = ?")
		args = append(args, strings.ToUpper(filter.Country))
	}
	if filter.Anonymity != "" {
		conds = append(conds, "anonymity = ?")
		args = append(args, filter.Anonymity)
	}
	if filter.MaxResponseTimeMs != nil {
		conds = append(conds, "avg_response_time_ms IS NOT NULL AND avg_response_time_ms <= ?")
		args = append(args, *filter.MaxResponseTimeMs)
	}

	row := r.db.QueryRow(
		"SELECT "+proxyColumns+" FROM proxies WHERE "+strings.Join(conds, " AND ")+" ORDER BY RANDOM() LIMIT 1",
		args...,
	)
	return scanProxy(row)
}

// Delete removes proxies. With invalidOnly it removes only rows that never
// validated or failed their last validation. Returns the number deleted.
func (r *ProxyRepo) Delete(invalidOnly bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := "DELETE FROM proxies"
	if invalidOnly {
		query += " WHERE valid = 0"
	}
	res, err := r.db.Exec(query)
	if err != nil {
		return 0, fmt.Errorf("delete proxies: %w", err)
	}
	return res.RowsAffected()
}

// DeleteStaleInvalid removes invalid rows whose last check is older than
// cutoffNs. Rows never checked are kept. Used by the maintenance sweep.
func (r *ProxyRepo) DeleteStaleInvalid(cutoffNs int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec(
		"DELETE FROM proxies WHERE valid = 0 AND last_checked_ns IS NOT NULL AND last_checked_ns < ?",
		cutoffNs,
	)
	if err != nil {
		return 0, fmt.Errorf("delete stale invalid proxies: %w", err)
	}
	return res.RowsAffected()
}

// CountryCount is one entry of the stats country leaderboard.
type CountryCount struct {
	Country string `json:"country"`
	Count   int    `json:"count"`
}

// SourceStats aggregates catalog state for one source.
type SourceStats struct {
	Source            string   `json:"source"`
	Total             int      `json:"total"`
	Valid             int      `json:"valid"`
	Invalid           int      `json:"invalid"`
	SuccessRate       float64  `json:"success_rate"`
	AvgResponseTimeMs *float64 `json:"avg_response_time_ms,omitempty"`
}

// Stats is the catalog aggregate snapshot.
type Stats struct {
	Total             int            `json:"total"`
	Valid             int            `json:"valid"`
	Invalid           int            `json:"invalid"`
	ByProtocol        map[string]int `json:"by_protocol"`
	ByCountry         []CountryCount `json:"by_country"`
	AvgResponseTimeMs *float64       `json:"avg_response_time_ms"`
	SuccessRate       float64        `json:"success_rate"`
	BySource          []SourceStats  `json:"by_source"`
}

// Stats computes the aggregate snapshot over the whole catalog.
func (r *ProxyRepo) Stats() (Stats, error) {
	s := Stats{ByProtocol: map[string]int{}, ByCountry: []CountryCount{}, BySource: []SourceStats{}}

	if err := r.db.QueryRow(
		"SELECT COUNT(*), COALESCE(SUM(valid), 0), AVG(CASE WHEN valid = 1 THEN avg_response_time_ms END) FROM proxies",
	).Scan(&s.Total, &s.Valid, &s.AvgResponseTimeMs); err != nil {
		return s, fmt.Errorf("stats totals: %w", err)
	}
	s.Invalid = s.Total - s.Valid
	if s.Total > 0 {
		s.SuccessRate = float64(s.Valid) / float64(s.Total)
	}

	rows, err := r.db.Query("SELECT protocol, COUNT(*) FROM proxies GROUP BY protocol")
	if err != nil {
		return s, fmt.Errorf("stats by protocol: %w", err)
	}
	for rows.Next() {
		var proto string
		var count int
		if err := rows.Scan(&proto, &count); err != nil {
			rows.Close()
			return s, err
		}
		s.ByProtocol[proto] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return s, err
	}

	rows, err = r.db.Query(`
		SELECT country, COUNT(*) AS n FROM proxies
		WHERE country IS NOT NULL
		GROUP BY country ORDER BY n DESC, country ASC LIMIT 10
	`)
	if err != nil {
		return s, fmt.Errorf("stats by country: %w", err)
	}
	for rows.Next() {
		var cc CountryCount
		if err := rows.Scan(&cc.Country, &cc.Count); err != nil {
			rows.Close()
			return s, err
		}
		s.ByCountry = append(s.ByCountry, cc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return s, err
	}

	rows, err = r.db.Query(`
		SELECT source, COUNT(*), COALESCE(SUM(valid), 0),
		       AVG(CASE WHEN valid = 1 THEN avg_response_time_ms END)
		FROM proxies WHERE source IS NOT NULL
		GROUP BY source ORDER BY source ASC
	`)
	if err != nil {
		return s, fmt.Errorf("stats by source: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ss SourceStats
		if err := rows.Scan(&ss.Source, &ss.Total, &ss.Valid, &ss.AvgResponseTimeMs); err != nil {
			return s, err
		}
		ss.Invalid = ss.Total - ss.Valid
		if ss.Total > 0 {
			ss.SuccessRate = float64(ss.Valid) / float64(ss.Total)
		}
		s.BySource = append(s.BySource, ss)
	}
	return s, rows.Err()
}

// SelectForValidation returns up to limit proxies prioritized for a refresh:
// never-checked rows first, then the stalest last_checked.
func (r *ProxyRepo) SelectForValidation(limit int, validOnly bool, protocols []model.Protocol) ([]model.ProxyRecord, error) {
	var conds []string
	var args []any
	if validOnly {
		conds = append(conds, "valid = 1")
	}
	if len(protocols) > 0 {
		placeholders := make([]string, len(protocols))
		for i, p := range protocols {
			placeholders[i] = "?"
			args = append(args, string(p))
		}
		conds = append(conds, "protocol IN ("+strings.Join(placeholders, ", ")+")")
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	rows, err := r.db.Query(
		"SELECT "+proxyColumns+" FROM proxies"+where+
			" ORDER BY (last_checked_ns IS NOT NULL) ASC, last_checked_ns ASC LIMIT ?",
		append(args, limit)...,
	)
	if err != nil {
		return nil, fmt.Errorf("select for validation: %w", err)
	}
	defer rows.Close()

	var result []model.ProxyRecord
	for rows.Next() {
		rec, err := scanProxy(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}
