package store

import "fmt"

// Static schema applied after a successful seed: query indices, reporting
// views, and the annotation tables. Annotation tables are never touched by
// the ETL after creation, so user tags and labels survive every update.

var indexSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_events_ev_id ON events(ev_id)`,
	`CREATE INDEX IF NOT EXISTS idx_events_ev_date ON events(ev_date)`,
	`CREATE INDEX IF NOT EXISTS idx_aircraft_ev_id ON aircraft(ev_id)`,
	`CREATE INDEX IF NOT EXISTS idx_engines_ev_id ON engines(ev_id)`,
	`CREATE INDEX IF NOT EXISTS idx_narratives_ev_id ON narratives(ev_id)`,
	`CREATE INDEX IF NOT EXISTS idx_seq_ev_id ON seq_of_events(ev_id)`,
	`CREATE INDEX IF NOT EXISTS idx_findings_ev_id ON findings(ev_id)`,
	`CREATE INDEX IF NOT EXISTS idx_injury_ev_id ON injury(ev_id)`,
}

var viewSQL = []string{
	`DROP VIEW IF EXISTS v_full_report`,
	`CREATE VIEW v_full_report AS
	SELECT
	    e.ev_id,
	    e.ev_date,
	    e.ev_city || ', ' || e.ev_state AS location,
	    a.regis_no,
	    a.acft_make,
	    a.acft_model,
	    e.inj_tot_t AS injury_total,
	    n.narr_cause
	FROM events e
	LEFT JOIN aircraft a ON e.ev_id = a.ev_id
	LEFT JOIN narratives n ON e.ev_id = n.ev_id`,
	`DROP VIEW IF EXISTS v_labeled_report`,
	`CREATE VIEW v_labeled_report AS
	SELECT
	    e.ev_id,
	    e.ev_date,
	    e.ev_city || ', ' || e.ev_state AS location,
	    a.regis_no,
	    a.acft_make,
	    a.acft_model,
	    e.inj_tot_t AS injury_total,
	    n.narr_cause,
	    GROUP_CONCAT(DISTINCT ut.tag) AS tags,
	    GROUP_CONCAT(DISTINCT ul.category || ':' || ul.value) AS labels
	FROM events e
	LEFT JOIN aircraft a ON e.ev_id = a.ev_id
	LEFT JOIN narratives n ON e.ev_id = n.ev_id
	LEFT JOIN user_tags ut ON e.ev_id = ut.ev_id
	LEFT JOIN user_labels ul ON e.ev_id = ul.ev_id
	GROUP BY e.ev_id, e.ev_date, location,
	         a.regis_no, a.acft_make, a.acft_model,
	         e.inj_tot_t, n.narr_cause`,
}

var annotationSQL = []string{
	`CREATE TABLE IF NOT EXISTS user_tags (
	    ev_id      TEXT NOT NULL,
	    tag        TEXT NOT NULL,
	    created_at TEXT DEFAULT CURRENT_TIMESTAMP,
	    PRIMARY KEY (ev_id, tag)
	)`,
	`CREATE TABLE IF NOT EXISTS user_labels (
	    ev_id      TEXT NOT NULL,
	    category   TEXT NOT NULL,
	    value      TEXT NOT NULL,
	    created_at TEXT DEFAULT CURRENT_TIMESTAMP,
	    PRIMARY KEY (ev_id, category, value)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_tags_tag ON user_tags(tag)`,
	`CREATE INDEX IF NOT EXISTS idx_user_labels_category ON user_labels(category)`,
	`CREATE INDEX IF NOT EXISTS idx_user_labels_category_value ON user_labels(category, value)`,
}

// InitReporting creates the annotation tables, query indices, and reporting
// views. Called once at the end of a seed, after all tables are loaded.
func (db *DB) InitReporting() error {
	for _, group := range [][]string{annotationSQL, indexSQL, viewSQL} {
		for _, stmt := range group {
			if _, err := db.conn.Exec(stmt); err != nil {
				return fmt.Errorf("failed to apply reporting schema: %w", err)
			}
		}
	}
	return nil
}
