package oracle

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/blang/semver/v4"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/lib/pq"
	"go.uber.org/multierr"

	"github.com/grafana/whatif/internal/plan"
)

const (
	selectServerVersion   = `SHOW server_version`
	explainPrefix         = `EXPLAIN (FORMAT JSON) `
	explainSettingsPrefix = `EXPLAIN (FORMAT JSON, SETTINGS) `
)

// EXPLAIN (SETTINGS) was added in PostgreSQL 12.
var explainSettingsRange = semver.MustParseRange(">=12.0.0")

var (
	directiveNameRegex  = regexp.MustCompile(`^[a-z][a-z0-9_.]*$`)
	directiveValueRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

// PostgresArguments configures a Postgres oracle.
type PostgresArguments struct {
	DB *sql.DB

	// EngineVersion skips server version detection when set.
	EngineVersion string

	Logger log.Logger
}

// Postgres plans queries with EXPLAIN on a PostgreSQL server. One Postgres
// value is one what-if session: its calls are serialized.
//
// An overlay is applied with SET LOCAL inside a transaction that is always
// rolled back, so the settings never outlive the call. If the rollback
// fails the connection is dropped from the pool rather than reused with an
// unknown configuration.
type Postgres struct {
	db     *sql.DB
	logger log.Logger

	mut              sync.Mutex
	versionKnown     bool
	explainSettings  bool
	configuredEngine string
}

var _ Oracle = (*Postgres)(nil)

// NewPostgres returns an oracle planning on args.DB.
func NewPostgres(args PostgresArguments) (*Postgres, error) {
	if args.DB == nil {
		return nil, errors.New("postgres oracle requires a database connection")
	}
	logger := args.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Postgres{
		db:               args.DB,
		logger:           log.With(logger, "oracle", "postgres"),
		configuredEngine: args.EngineVersion,
	}, nil
}

// FetchPlan explains query with overlay applied for the duration of the
// call. Calls are serialized.
func (p *Postgres) FetchPlan(ctx context.Context, query string, overlay Overlay) (fetch *Fetch, err error) {
	p.mut.Lock()
	defer p.mut.Unlock()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &OracleError{Op: "validate", Err: errors.New("empty query")}
	}
	if err := checkSingleStatement(query); err != nil {
		return nil, &OracleError{Op: "validate", Err: err}
	}
	for _, d := range overlay {
		if !directiveNameRegex.MatchString(d.Name) || !directiveValueRegex.MatchString(d.Value) {
			return nil, &OracleError{Op: "validate", Err: fmt.Errorf("invalid directive %q", d.String())}
		}
	}

	logger := log.With(p.logger, "query", redactSQL(query))
	level.Debug(logger).Log("msg", "fetching plan", "overlay", overlay.String())

	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, &OracleError{Op: "connect", Code: sqlState(err), Err: err}
	}
	defer conn.Close()

	if err := p.detectVersion(ctx, conn); err != nil {
		return nil, err
	}

	if len(overlay) > 0 {
		if _, err := conn.ExecContext(ctx, "BEGIN"); err != nil {
			return nil, &OracleError{Op: "apply overlay", Code: sqlState(err), Err: err}
		}

		defer func() {
			resetErr := p.reset(context.WithoutCancel(ctx), conn, overlay)
			if resetErr == nil {
				return
			}
			level.Warn(logger).Log("msg", "failed to reset optimizer configuration", "err", resetErr)
			if err == nil {
				fetch.ResetErr = resetErr
			}
		}()

		for _, d := range overlay {
			if _, err := conn.ExecContext(ctx, "SET LOCAL "+d.String()); err != nil {
				return nil, &OracleError{Op: "apply overlay", Code: sqlState(err), Err: fmt.Errorf("%s: %w", d, err)}
			}
		}
	}

	prefix := explainPrefix
	if p.explainSettings {
		prefix = explainSettingsPrefix
	}

	var raw []byte
	if err := conn.QueryRowContext(ctx, prefix+query).Scan(&raw); err != nil {
		return nil, &OracleError{Op: "explain", Code: sqlState(err), Err: err}
	}

	tree, err := plan.Parse(raw)
	if err != nil {
		return nil, err
	}

	level.Debug(logger).Log("msg", "fetched plan", "nodes", tree.Len())
	return &Fetch{Tree: tree}, nil
}

// detectVersion decides once per session whether EXPLAIN accepts SETTINGS.
func (p *Postgres) detectVersion(ctx context.Context, conn *sql.Conn) error {
	if p.versionKnown {
		return nil
	}

	engineVersion := p.configuredEngine
	if engineVersion == "" {
		if err := conn.QueryRowContext(ctx, selectServerVersion).Scan(&engineVersion); err != nil {
			return &OracleError{Op: "detect version", Code: sqlState(err), Err: err}
		}
	}

	p.versionKnown = true
	fields := strings.Fields(engineVersion)
	if len(fields) == 0 {
		level.Warn(p.logger).Log("msg", "empty server version, planning without SETTINGS")
		return nil
	}
	v, err := semver.ParseTolerant(fields[0])
	if err != nil {
		level.Warn(p.logger).Log("msg", "failed to parse server version, planning without SETTINGS", "version", engineVersion, "err", err)
		return nil
	}
	p.explainSettings = explainSettingsRange(v)
	level.Debug(p.logger).Log("msg", "detected server version", "version", v.String(), "explain_settings", p.explainSettings)
	return nil
}

func (p *Postgres) reset(ctx context.Context, conn *sql.Conn, overlay Overlay) error {
	_, err := conn.ExecContext(ctx, "ROLLBACK")
	if err == nil {
		return nil
	}

	// Returning ErrBadConn makes database/sql close the connection instead
	// of returning it to the pool.
	if rawErr := conn.Raw(func(any) error { return driver.ErrBadConn }); rawErr != nil && !errors.Is(rawErr, driver.ErrBadConn) {
		err = multierr.Append(err, rawErr)
	}
	return &ResetError{Overlay: overlay, Err: err}
}

func sqlState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
