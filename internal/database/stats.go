package database

import "context"

// GetStats returns row counts across the store.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := db.conn.GetContext(ctx, &s,
		`SELECT
			(SELECT COUNT(*) FROM parties) AS parties,
			(SELECT COUNT(*) FROM candidates) AS candidates,
			(SELECT COUNT(*) FROM news_mentions) AS news_mentions,
			(SELECT COUNT(*) FROM social_mentions) AS social_mentions,
			(SELECT COUNT(*) FROM flags) AS flags,
			(SELECT COUNT(*) FROM finance_records) AS finance_records,
			(SELECT COUNT(*) FROM ai_analysis_queue WHERE status = 'pending') AS queue_pending`)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
