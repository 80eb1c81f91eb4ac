package ops

import (
	"context"
	"database/sql"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ExpectedPolicies are the row-level-security policies the profiles table must carry.
var ExpectedPolicies = []string{
	"select_public_or_own_profiles",
	"update_own_profile",
	"insert_profile_authenticated",
	"delete_own_profile",
}

// DefaultMatchFunctions are checked for SECURITY DEFINER, which bypasses RLS.
var DefaultMatchFunctions = []string{"find_matches", "find_matches_cursor", "find_matches_pgvector"}

// ErrProfilesTableMissing signals that migrations have not been applied.
var ErrProfilesTableMissing = errors.New("profiles table not found")

// VerifyReport is the outcome of Verify.
type VerifyReport struct {
	RLSEnabled      bool
	Policies        []string
	MissingPolicies []string
	// SecurityDefiner lists matching functions that run with their owner's rights.
	SecurityDefiner []string
}

// OK reports whether RLS is on and every expected policy exists.
// SECURITY DEFINER functions are a warning, not a failure.
func (r VerifyReport) OK() bool {
	return r.RLSEnabled && len(r.MissingPolicies) == 0
}

const (
	rlsQuery      = `SELECT relrowsecurity FROM pg_class WHERE relname = 'profiles' AND relkind = 'r'`
	policiesQuery = `SELECT policyname FROM pg_policies WHERE tablename = 'profiles' ORDER BY policyname`
	definerQuery  = `SELECT proname FROM pg_proc WHERE prosecdef AND proname = ANY($1) ORDER BY proname`
)

// Verify inspects the catalog for the profiles RLS setup.
func Verify(ctx context.Context, q sqlx.QueryerContext, functions []string) (VerifyReport, error) {
	var report VerifyReport

	if err := sqlx.GetContext(ctx, q, &report.RLSEnabled, rlsQuery); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return VerifyReport{}, ErrProfilesTableMissing
		}
		return VerifyReport{}, errors.Wrap(err, "check row level security")
	}

	if err := sqlx.SelectContext(ctx, q, &report.Policies, policiesQuery); err != nil {
		return VerifyReport{}, errors.Wrap(err, "list policies")
	}
	for _, p := range ExpectedPolicies {
		if !slices.Contains(report.Policies, p) {
			report.MissingPolicies = append(report.MissingPolicies, p)
		}
	}

	if len(functions) > 0 {
		if err := sqlx.SelectContext(ctx, q, &report.SecurityDefiner, definerQuery, pq.Array(functions)); err != nil {
			return VerifyReport{}, errors.Wrapf(err, "inspect functions %v", functions)
		}
	}

	return report, nil
}
