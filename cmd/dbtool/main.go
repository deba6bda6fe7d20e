package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
)

func main() {
	if len(os.Args) < 2 {
		fatalf("usage: dbtool <rls-smoke|rulepack-smoke|close-events-smoke> [args]")
	}

	switch os.Args[1] {
	case "rls-smoke":
		rlsSmoke(os.Args[2:])
	case "rulepack-smoke":
		rulepackSmoke(os.Args[2:])
	case "close-events-smoke":
		closeEventsSmoke(os.Args[2:])
	default:
		fatalf("unknown subcommand: %s", os.Args[1])
	}
}

// rlsSmoke proves row-level security fails closed when app.current_tenant is
// unset and isolates tenants when it is set.
func rlsSmoke(args []string) {
	ctx, cancel, conn := connectFromArgs("rls-smoke", args)
	defer cancel()
	defer conn.Close(context.Background())

	_ = tryEnsureRole(ctx, conn, "app_nobypassrls")

	tx, err := conn.Begin(ctx)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	_ = trySetRole(ctx, tx, "app_nobypassrls")
	if _, err := tx.Exec(ctx, `CREATE TEMP TABLE rls_smoke (tenant_id uuid NOT NULL, val text NOT NULL);`); err != nil {
		fatal(err)
	}
	if _, err := tx.Exec(ctx, `ALTER TABLE rls_smoke ENABLE ROW LEVEL SECURITY;`); err != nil {
		fatal(err)
	}
	if _, err := tx.Exec(ctx, `ALTER TABLE rls_smoke FORCE ROW LEVEL SECURITY;`); err != nil {
		fatal(err)
	}
	if _, err := tx.Exec(ctx, `
CREATE POLICY tenant_isolation ON rls_smoke
USING (tenant_id = public.current_tenant_id())
WITH CHECK (tenant_id = public.current_tenant_id());`); err != nil {
		fatal(err)
	}

	if _, err := tx.Exec(ctx, `SAVEPOINT sp_failclosed;`); err != nil {
		fatal(err)
	}
	_, err = tx.Exec(ctx, `SELECT count(*) FROM rls_smoke;`)
	if _, rbErr := tx.Exec(ctx, `ROLLBACK TO SAVEPOINT sp_failclosed;`); rbErr != nil {
		fatal(rbErr)
	}
	if err == nil {
		fatalf("expected fail-closed error when app.current_tenant is missing")
	}

	tenantA := "00000000-0000-0000-0000-00000000000a"
	tenantB := "00000000-0000-0000-0000-00000000000b"
	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantA); err != nil {
		fatal(err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO rls_smoke (tenant_id, val) VALUES ($1, 'a');`, tenantA); err != nil {
		fatal(err)
	}

	if _, err := tx.Exec(ctx, `SAVEPOINT sp_cross_insert;`); err != nil {
		fatal(err)
	}
	_, err = tx.Exec(ctx, `INSERT INTO rls_smoke (tenant_id, val) VALUES ($1, 'b');`, tenantB)
	if _, rbErr := tx.Exec(ctx, `ROLLBACK TO SAVEPOINT sp_cross_insert;`); rbErr != nil {
		fatal(rbErr)
	}
	if err == nil {
		fatalf("expected RLS rejection on cross-tenant insert")
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM rls_smoke;`).Scan(&count); err != nil {
		fatal(err)
	}
	if count != 1 {
		fatalf("expected count=1 under tenant A, got %d", count)
	}

	fmt.Println("[rls-smoke] OK")
}

// rulepackSmoke writes a pack with one rule under tenant A and verifies the
// resolution query sees it while tenant B does not.
func rulepackSmoke(args []string) {
	ctx, cancel, conn := connectFromArgs("rulepack-smoke", args)
	defer cancel()
	defer conn.Close(context.Background())

	_ = tryEnsureRole(ctx, conn, "app_nobypassrls")

	tenantA := "00000000-0000-0000-0000-00000000000a"
	tenantB := "00000000-0000-0000-0000-00000000000b"

	tx, err := conn.Begin(ctx)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	_ = trySetRole(ctx, tx, "app_nobypassrls")
	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantA); err != nil {
		fatal(err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM compliance.rule_pack_rules WHERE tenant_id = $1::uuid;`, tenantA); err != nil {
		fatal(err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM compliance.rule_packs WHERE tenant_id = $1::uuid;`, tenantA); err != nil {
		fatal(err)
	}

	var packID string
	if err := tx.QueryRow(ctx, `
INSERT INTO compliance.rule_packs (
  tenant_id, scope_type, scope_id, plan_type, name, version, is_active, effective_from
) VALUES ($1::uuid, 'DISTRICT', 'dst-smoke', 'IEP', 'dbtool smoke pack', 1, true, '2025-01-01'::timestamptz)
RETURNING rule_pack_id::text
`, tenantA).Scan(&packID); err != nil {
		fatal(err)
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO compliance.rule_pack_rules (tenant_id, rule_pack_id, rule_key, is_enabled, config, sort_order)
VALUES ($1::uuid, $2::uuid, 'PRE_MEETING_DOCS_DAYS', true, '{"days": 7}'::jsonb, 0)
`, tenantA, packID); err != nil {
		fatal(err)
	}

	var found string
	if err := tx.QueryRow(ctx, `
SELECT rule_pack_id::text
FROM compliance.rule_packs
WHERE tenant_id = $1::uuid
  AND scope_type = 'DISTRICT'
  AND scope_id = 'dst-smoke'
  AND plan_type = 'IEP'
  AND is_active
  AND effective_from <= now()
  AND (effective_to IS NULL OR effective_to >= now())
`, tenantA).Scan(&found); err != nil {
		fatal(err)
	}
	if found != packID {
		fatalf("resolution query returned %s, want %s", found, packID)
	}
	if err := tx.Commit(ctx); err != nil {
		fatal(err)
	}

	tx2, err := conn.Begin(ctx)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = tx2.Rollback(context.Background()) }()

	_ = trySetRole(ctx, tx2, "app_nobypassrls")
	if _, err := tx2.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantB); err != nil {
		fatal(err)
	}
	var crossCount int
	if err := tx2.QueryRow(ctx, `SELECT count(*) FROM compliance.rule_packs WHERE scope_id = 'dst-smoke';`).Scan(&crossCount); err != nil {
		fatal(err)
	}
	if crossCount != 0 {
		fatalf("tenant B sees %d of tenant A's packs", crossCount)
	}

	fmt.Println("[rulepack-smoke] OK")
}

// closeEventsSmoke verifies the close audit insert is rerunnable: a second
// insert with the same event id is a no-op, not a duplicate row.
func closeEventsSmoke(args []string) {
	ctx, cancel, conn := connectFromArgs("close-events-smoke", args)
	defer cancel()
	defer conn.Close(context.Background())

	tenantA := "00000000-0000-0000-0000-00000000000a"
	eventID := "00000000-0000-0000-0000-00000000c105"
	meetingID := "00000000-0000-0000-0000-00000000d105"

	tx, err := conn.Begin(ctx)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantA); err != nil {
		fatal(err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM meetings.meeting_close_events WHERE tenant_id = $1::uuid AND event_id = $2::uuid;`, tenantA, eventID); err != nil {
		fatal(err)
	}

	insert := `
INSERT INTO meetings.meeting_close_events (event_id, tenant_id, meeting_id, closed_at, closed_by_user_id)
VALUES ($1::uuid, $2::uuid, $3::uuid, now(), 'dbtool')
ON CONFLICT (event_id) DO NOTHING;`
	if _, err := tx.Exec(ctx, insert, eventID, tenantA, meetingID); err != nil {
		fatal(err)
	}
	if _, err := tx.Exec(ctx, insert, eventID, tenantA, meetingID); err != nil {
		fatal(err)
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM meetings.meeting_close_events WHERE tenant_id = $1::uuid AND event_id = $2::uuid;`, tenantA, eventID).Scan(&count); err != nil {
		fatal(err)
	}
	if count != 1 {
		fatalf("expected one close event, got %d", count)
	}

	fmt.Println("[close-events-smoke] OK")
}

func connectFromArgs(name string, args []string) (context.Context, context.CancelFunc, *pgx.Conn) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var url string
	fs.StringVar(&url, "url", "", "postgres connection string")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if url == "" {
		fatalf("missing --url")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		cancel()
		fatal(err)
	}
	return ctx, cancel, conn
}

var sqlIdentRE = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func validSQLIdent(s string) bool {
	return sqlIdentRE.MatchString(s)
}

func tryEnsureRole(ctx context.Context, conn *pgx.Conn, role string) error {
	if !validSQLIdent(role) {
		return fmt.Errorf("invalid role: %s", role)
	}

	stmt := fmt.Sprintf(`DO $$
BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = '%s') THEN
    EXECUTE 'CREATE ROLE %s NOBYPASSRLS';
  END IF;
END
$$;`, role, role)
	if _, err := conn.Exec(ctx, stmt); err != nil {
		return err
	}
	for _, schema := range []string{"public", "compliance", "meetings"} {
		_, _ = conn.Exec(ctx, `GRANT USAGE ON SCHEMA `+schema+` TO `+role+`;`)
		_, _ = conn.Exec(ctx, `GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA `+schema+` TO `+role+`;`)
		_, _ = conn.Exec(ctx, `GRANT USAGE, SELECT ON ALL SEQUENCES IN SCHEMA `+schema+` TO `+role+`;`)
		_, _ = conn.Exec(ctx, `GRANT EXECUTE ON ALL FUNCTIONS IN SCHEMA `+schema+` TO `+role+`;`)
	}
	return nil
}

func trySetRole(ctx context.Context, tx pgx.Tx, role string) bool {
	if _, err := tx.Exec(ctx, `SET ROLE `+role+`;`); err != nil {
		return false
	}
	return true
}

func fatal(err error) {
	fatalf("%v", err)
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
