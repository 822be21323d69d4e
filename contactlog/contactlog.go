package contactlog

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/jmoiron/sqlx"
	"github.com/runesim/kaun/models"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS contacts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tick INTEGER NOT NULL,
	agent_a INTEGER NOT NULL,
	agent_b INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contacts_tick ON contacts(tick);
CREATE INDEX IF NOT EXISTS idx_contacts_agent_a ON contacts(agent_a);
CREATE INDEX IF NOT EXISTS idx_contacts_agent_b ON contacts(agent_b);
`

// Log persists per-tick contact edges to SQLite so contacts can be traced
// after the run.
type Log struct {
	conn *sqlx.DB
}

// Open opens or creates the contact log at the given path.
func Open(path string) (*Log, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.New("opening contact log failed").
			WithTag("path", path).
			Wrap(err)
	}

	l := &Log{conn: conn}
	if err := l.migrate(); err != nil {
		conn.Close()
		return nil, errors.New("migrating contact log failed").
			WithTag("path", path).
			Wrap(err)
	}

	return l, nil
}

func (l *Log) Close() error {
	return l.conn.Close()
}

func (l *Log) migrate() error {
	_, err := l.conn.Exec(schema)
	return err
}

// WriteTick appends one tick's edges in a single transaction.
func (l *Log) WriteTick(tick uint64, edges []models.ContactEdge) error {
	if len(edges) == 0 {
		return nil
	}

	tx, err := l.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex("INSERT INTO contacts (tick, agent_a, agent_b) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range edges {
		if _, err := stmt.Exec(tick, e.A, e.B); err != nil {
			return errors.New("inserting contact failed").
				WithTag("tick", tick).
				Wrap(err)
		}
	}

	return tx.Commit()
}

// EdgesAt returns the edges recorded for the given tick, canonical order.
func (l *Log) EdgesAt(tick uint64) ([]models.ContactEdge, error) {
	var rows []contactRow
	err := l.conn.Select(&rows,
		"SELECT tick, agent_a, agent_b FROM contacts WHERE tick = ? ORDER BY agent_a, agent_b",
		tick,
	)
	if err != nil {
		return nil, err
	}

	edges := make([]models.ContactEdge, len(rows))
	for i, r := range rows {
		edges[i] = models.ContactEdge{A: r.AgentA, B: r.AgentB}
	}
	return edges, nil
}

// Partners returns the distinct agents recorded in contact with the given
// agent, over the whole log.
func (l *Log) Partners(agentID uint32) ([]uint32, error) {
	var partners []uint32
	err := l.conn.Select(&partners,
		`SELECT DISTINCT CASE WHEN agent_a = ? THEN agent_b ELSE agent_a END AS partner
		 FROM contacts
		 WHERE agent_a = ? OR agent_b = ?
		 ORDER BY partner`,
		agentID, agentID, agentID,
	)
	return partners, err
}

// EdgeCount returns the total number of recorded edges.
func (l *Log) EdgeCount() (int, error) {
	var count int
	err := l.conn.Get(&count, "SELECT COUNT(*) FROM contacts")
	return count, err
}

type contactRow struct {
	Tick   uint64 `db:"tick"`
	AgentA uint32 `db:"agent_a"`
	AgentB uint32 `db:"agent_b"`
}
