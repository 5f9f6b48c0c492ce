// Package access answers capability questions for the artifact endpoints.
// The real permission engine lives in the wider platform; this gate only
// knows how to turn "may this user see this observation" into a yes or no.
package access

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type Gate struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Gate { return &Gate{pool: pool} }

// CanReadObservation reports whether the user belongs to the organization
// that owns the observation. A missing observation is simply "no"; callers
// surface that as not found.
func (g *Gate) CanReadObservation(ctx context.Context, userID, observationID uuid.UUID) (bool, error) {
	var ok bool
	err := g.pool.QueryRow(ctx, `
		select exists (
			select 1
			from observations o
			join organization_members m on m.organization_id = o.organization_id
			where o.id = $1 and m.user_id = $2
		)`,
		observationID, userID,
	).Scan(&ok)
	return ok, errors.Wrap(err, "check observation access")
}
