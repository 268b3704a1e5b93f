package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	plandomain "github.com/aeronet-project/aeronet/internal/plan/domain"
	"github.com/aeronet-project/aeronet/internal/storage"
)

const planColumns = `
	id, pilot_id, company_id, aircraft_type, callsign,
	departure, arrival, flight_rule, planned_minutes, commercial,
	passengers, cargo_kg, status,
	holder_session_id, holder_airport, holder_position,
	transfer_airport, transfer_position, transfer_requested_at, transfer_deadline,
	automonitoring,
	revenue_gross, taxes, revenue_net, pilot_salary, company_revenue,
	settled_passengers, settled_cargo_kg,
	created_at, accepted_at, closure_requested_at, closed_at
`

// claimableStatuses is the set of statuses an unclaimed plan may be claimed
// from. Plans awaiting closure or terminal are excluded by construction.
const claimableStatuses = `('filed','awaiting_acceptance','accepted','in_progress')`

// CreatePlan inserts a new flight plan record.
func (s *Store) CreatePlan(ctx context.Context, plan plandomain.FlightPlan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(plan.ID) == "" {
		return fmt.Errorf("plan id is required")
	}
	if plan.Status == plandomain.StatusUnspecified {
		return fmt.Errorf("plan status is required")
	}

	var holderSession, holderAirport, holderPosition any
	if plan.Holder != nil {
		holderSession = plan.Holder.SessionID
		holderAirport = plan.Holder.Airport
		holderPosition = plan.Holder.Position
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO flight_plans (
	id, pilot_id, company_id, aircraft_type, callsign,
	departure, arrival, flight_rule, planned_minutes, commercial,
	passengers, cargo_kg, status,
	holder_session_id, holder_airport, holder_position,
	automonitoring, created_at, accepted_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		plan.ID,
		toNullString(plan.PilotID),
		toNullString(plan.CompanyID),
		toNullString(plan.AircraftType),
		toNullString(plan.Callsign),
		plan.Departure,
		plan.Arrival,
		plan.Rule.String(),
		plan.PlannedMinutes,
		boolToInt(plan.Commercial),
		toNullInt64(plan.Passengers),
		toNullInt64(plan.CargoKg),
		plan.Status.String(),
		holderSession,
		holderAirport,
		holderPosition,
		boolToInt(plan.Automonitoring),
		toMillis(plan.CreatedAt),
		toNullMillis(plan.AcceptedAt),
	)
	if err != nil {
		return fmt.Errorf("create plan: %w", err)
	}
	return nil
}

// GetPlan loads one flight plan by ID.
func (s *Store) GetPlan(ctx context.Context, planID string) (plandomain.FlightPlan, error) {
	if err := ctx.Err(); err != nil {
		return plandomain.FlightPlan{}, err
	}
	if err := s.ready(); err != nil {
		return plandomain.FlightPlan{}, err
	}
	planID = strings.TrimSpace(planID)
	if planID == "" {
		return plandomain.FlightPlan{}, fmt.Errorf("plan id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+planColumns+` FROM flight_plans WHERE id = ?`, planID)
	plan, err := scanPlanRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return plandomain.FlightPlan{}, storage.ErrNotFound
		}
		return plandomain.FlightPlan{}, fmt.Errorf("get plan: %w", err)
	}
	return plan, nil
}

// SetStatus moves a plan between statuses with an optional holder guard.
// Accepted stamps accepted_at; awaiting-closure stamps closure_requested_at.
func (s *Store) SetStatus(ctx context.Context, planID string, from, to plandomain.Status, holderSessionID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	planID = strings.TrimSpace(planID)
	if planID == "" {
		return fmt.Errorf("plan id is required")
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("status %s cannot move to %s", from, to)
	}

	set := "status = ?"
	args := []any{to.String()}
	switch to {
	case plandomain.StatusAccepted:
		set += ", accepted_at = ?"
		args = append(args, toMillis(at))
	case plandomain.StatusAwaitingClosure:
		set += ", closure_requested_at = ?"
		args = append(args, toMillis(at))
	}

	query := "UPDATE flight_plans SET " + set + " WHERE id = ? AND status = ?"
	args = append(args, planID, from.String())
	if holderSessionID != "" {
		query += " AND holder_session_id = ?"
		args = append(args, holderSessionID)
	}

	res, err := s.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set plan status: %w", err)
	}
	return oneRowOrStale(res, "set plan status")
}

// ClaimHolder installs a holder on an unclaimed, claimable plan. A filed plan
// advances to awaiting-acceptance in the same write; automonitoring clears.
// An automonitoring plan may only be re-claimed from one of its route
// airports.
func (s *Store) ClaimHolder(ctx context.Context, planID string, holder plandomain.Holder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	planID = strings.TrimSpace(planID)
	if planID == "" {
		return fmt.Errorf("plan id is required")
	}
	if strings.TrimSpace(holder.SessionID) == "" {
		return fmt.Errorf("holder session id is required")
	}

	res, err := s.sqlDB.ExecContext(ctx, `
UPDATE flight_plans
SET holder_session_id = ?, holder_airport = ?, holder_position = ?,
    automonitoring = 0,
    status = CASE WHEN status = 'filed' THEN 'awaiting_acceptance' ELSE status END
WHERE id = ? AND holder_session_id IS NULL AND status IN `+claimableStatuses+`
  AND (automonitoring = 0 OR ? IN (departure, arrival))`,
		holder.SessionID, holder.Airport, holder.Position, planID, holder.Airport,
	)
	if err != nil {
		return fmt.Errorf("claim holder: %w", err)
	}
	return oneRowOrStale(res, "claim holder")
}

// ReleaseHolder clears the holder for the given session. Any pending
// transfer goes with it; the automonitoring flag is set as instructed.
func (s *Store) ReleaseHolder(ctx context.Context, planID, sessionID string, automonitoring bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	planID = strings.TrimSpace(planID)
	sessionID = strings.TrimSpace(sessionID)
	if planID == "" || sessionID == "" {
		return fmt.Errorf("plan id and session id are required")
	}

	res, err := s.sqlDB.ExecContext(ctx, `
UPDATE flight_plans
SET holder_session_id = NULL, holder_airport = NULL, holder_position = NULL,
    automonitoring = ?,
    transfer_airport = NULL, transfer_position = NULL,
    transfer_requested_at = NULL, transfer_deadline = NULL
WHERE id = ? AND holder_session_id = ?
`,
		boolToInt(automonitoring), planID, sessionID,
	)
	if err != nil {
		return fmt.Errorf("release holder: %w", err)
	}
	return oneRowOrStale(res, "release holder")
}

// AttachPendingTransfer records a handoff proposal for the holding session.
func (s *Store) AttachPendingTransfer(ctx context.Context, planID, sessionID string, transfer plandomain.TransferRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	planID = strings.TrimSpace(planID)
	sessionID = strings.TrimSpace(sessionID)
	if planID == "" || sessionID == "" {
		return fmt.Errorf("plan id and session id are required")
	}
	if strings.TrimSpace(transfer.TargetAirport) == "" || strings.TrimSpace(transfer.TargetPosition) == "" {
		return fmt.Errorf("transfer target is required")
	}

	res, err := s.sqlDB.ExecContext(ctx, `
UPDATE flight_plans
SET transfer_airport = ?, transfer_position = ?,
    transfer_requested_at = ?, transfer_deadline = ?
WHERE id = ? AND holder_session_id = ? AND transfer_airport IS NULL
`,
		transfer.TargetAirport,
		transfer.TargetPosition,
		toMillis(transfer.RequestedAt),
		toMillis(transfer.AcceptDeadline),
		planID,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("attach pending transfer: %w", err)
	}
	return oneRowOrStale(res, "attach pending transfer")
}

// ClearPendingTransfer drops a pending transfer, gated on the clearing
// session still holding the plan and the stored offer matching the one the
// caller read. A concurrent accept-and-re-offer changes those fields, so a
// stale actor cannot erase the new holder's live offer.
func (s *Store) ClearPendingTransfer(ctx context.Context, planID, sessionID string, expected plandomain.TransferRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	planID = strings.TrimSpace(planID)
	sessionID = strings.TrimSpace(sessionID)
	if planID == "" || sessionID == "" {
		return fmt.Errorf("plan id and session id are required")
	}

	res, err := s.sqlDB.ExecContext(ctx, `
UPDATE flight_plans
SET transfer_airport = NULL, transfer_position = NULL,
    transfer_requested_at = NULL, transfer_deadline = NULL
WHERE id = ? AND holder_session_id = ?
  AND transfer_airport = ? AND transfer_position = ?
  AND transfer_deadline = ?
`,
		planID, sessionID,
		expected.TargetAirport, expected.TargetPosition,
		toMillis(expected.AcceptDeadline),
	)
	if err != nil {
		return fmt.Errorf("clear pending transfer: %w", err)
	}
	return oneRowOrStale(res, "clear pending transfer")
}

// AcceptTransfer installs the accepting holder and clears the pending
// transfer in one conditional write. The WHERE clause restates the full
// expected state, so exactly one of N concurrent acceptors wins.
func (s *Store) AcceptTransfer(ctx context.Context, planID string, holder plandomain.Holder, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	planID = strings.TrimSpace(planID)
	if planID == "" {
		return fmt.Errorf("plan id is required")
	}
	if strings.TrimSpace(holder.SessionID) == "" {
		return fmt.Errorf("holder session id is required")
	}

	res, err := s.sqlDB.ExecContext(ctx, `
UPDATE flight_plans
SET holder_session_id = ?, holder_airport = ?, holder_position = ?,
    automonitoring = 0,
    transfer_airport = NULL, transfer_position = NULL,
    transfer_requested_at = NULL, transfer_deadline = NULL
WHERE id = ? AND transfer_airport = ? AND transfer_position = ?
  AND transfer_deadline > ?
`,
		holder.SessionID, holder.Airport, holder.Position,
		planID, holder.Airport, holder.Position,
		toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("accept transfer: %w", err)
	}
	return oneRowOrStale(res, "accept transfer")
}

// ClearExpiredTransfers drops every pending transfer whose deadline passed.
func (s *Store) ClearExpiredTransfers(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.ready(); err != nil {
		return 0, err
	}

	res, err := s.sqlDB.ExecContext(ctx, `
UPDATE flight_plans
SET transfer_airport = NULL, transfer_position = NULL,
    transfer_requested_at = NULL, transfer_deadline = NULL
WHERE transfer_deadline IS NOT NULL AND transfer_deadline <= ?
`, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("clear expired transfers: %w", err)
	}
	cleared, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear expired transfers rows affected: %w", err)
	}
	return cleared, nil
}

// FinalizeSettlement writes the settlement fields exactly once, moving the
// plan from awaiting-closure to closed. The revenue_gross IS NULL guard makes
// settlement immutable after the first commit.
func (s *Store) FinalizeSettlement(ctx context.Context, planID string, settlement plandomain.Settlement, closedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	planID = strings.TrimSpace(planID)
	if planID == "" {
		return fmt.Errorf("plan id is required")
	}

	res, err := s.sqlDB.ExecContext(ctx, `
UPDATE flight_plans
SET status = 'closed',
    revenue_gross = ?, taxes = ?, revenue_net = ?,
    pilot_salary = ?, company_revenue = ?,
    settled_passengers = ?, settled_cargo_kg = ?,
    closed_at = ?
WHERE id = ? AND status = 'awaiting_closure' AND revenue_gross IS NULL
`,
		settlement.RevenueGross,
		settlement.Taxes,
		settlement.RevenueNet,
		settlement.PilotSalary,
		settlement.CompanyRevenue,
		settlement.PassengerCount,
		settlement.CargoKg,
		toMillis(closedAt),
		planID,
	)
	if err != nil {
		return fmt.Errorf("finalize settlement: %w", err)
	}
	return oneRowOrStale(res, "finalize settlement")
}

// ListHeldBySession returns every plan currently held by the session.
func (s *Store) ListHeldBySession(ctx context.Context, sessionID string) ([]plandomain.FlightPlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+planColumns+` FROM flight_plans WHERE holder_session_id = ? ORDER BY created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list held plans: %w", err)
	}
	defer rows.Close()
	return collectPlans(rows)
}

// ListUnclaimedByAirport returns claimable holderless plans touching the
// airport, oldest first.
func (s *Store) ListUnclaimedByAirport(ctx context.Context, airport string, limit int) ([]plandomain.FlightPlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	airport = strings.ToUpper(strings.TrimSpace(airport))
	if airport == "" {
		return nil, fmt.Errorf("airport is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+planColumns+`
FROM flight_plans
WHERE holder_session_id IS NULL
  AND status IN `+claimableStatuses+`
  AND (departure = ? OR arrival = ?)
ORDER BY created_at ASC
LIMIT ?
`, airport, airport, limit)
	if err != nil {
		return nil, fmt.Errorf("list unclaimed plans: %w", err)
	}
	defer rows.Close()
	return collectPlans(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlanRow(row rowScanner) (plandomain.FlightPlan, error) {
	var (
		plan plandomain.FlightPlan

		pilotID, companyID, aircraftType, callsign  sql.NullString
		rule, status                                string
		commercial, automonitoring                  int64
		passengers, cargoKg                         sql.NullInt64
		holderSession, holderAirport, holderPos     sql.NullString
		transferAirport, transferPos                sql.NullString
		transferRequestedAt, transferDeadline       sql.NullInt64
		revenueGross, taxes, revenueNet             sql.NullInt64
		pilotSalary, companyRevenue                 sql.NullInt64
		settledPassengers, settledCargo             sql.NullInt64
		createdAt                                   int64
		acceptedAt, closureRequestedAt, closedAtVal sql.NullInt64
	)

	err := row.Scan(
		&plan.ID, &pilotID, &companyID, &aircraftType, &callsign,
		&plan.Departure, &plan.Arrival, &rule, &plan.PlannedMinutes, &commercial,
		&passengers, &cargoKg, &status,
		&holderSession, &holderAirport, &holderPos,
		&transferAirport, &transferPos, &transferRequestedAt, &transferDeadline,
		&automonitoring,
		&revenueGross, &taxes, &revenueNet, &pilotSalary, &companyRevenue,
		&settledPassengers, &settledCargo,
		&createdAt, &acceptedAt, &closureRequestedAt, &closedAtVal,
	)
	if err != nil {
		return plandomain.FlightPlan{}, err
	}

	plan.PilotID = pilotID.String
	plan.CompanyID = companyID.String
	plan.AircraftType = aircraftType.String
	plan.Callsign = callsign.String
	plan.Rule = plandomain.ParseFlightRule(rule)
	plan.Commercial = commercial != 0
	plan.Passengers = fromNullInt64(passengers)
	plan.CargoKg = fromNullInt64(cargoKg)
	plan.Status = plandomain.ParseStatus(status)
	plan.Automonitoring = automonitoring != 0
	plan.CreatedAt = fromMillis(createdAt)
	plan.AcceptedAt = fromNullMillis(acceptedAt)
	plan.ClosureRequestedAt = fromNullMillis(closureRequestedAt)
	plan.ClosedAt = fromNullMillis(closedAtVal)

	if holderSession.Valid {
		plan.Holder = &plandomain.Holder{
			SessionID: holderSession.String,
			Airport:   holderAirport.String,
			Position:  holderPos.String,
		}
	}
	if transferAirport.Valid {
		plan.PendingTransfer = &plandomain.TransferRequest{
			TargetAirport:  transferAirport.String,
			TargetPosition: transferPos.String,
		}
		if transferRequestedAt.Valid {
			plan.PendingTransfer.RequestedAt = fromMillis(transferRequestedAt.Int64)
		}
		if transferDeadline.Valid {
			plan.PendingTransfer.AcceptDeadline = fromMillis(transferDeadline.Int64)
		}
	}
	if revenueGross.Valid {
		plan.Settlement = &plandomain.Settlement{
			RevenueGross:   revenueGross.Int64,
			Taxes:          taxes.Int64,
			RevenueNet:     revenueNet.Int64,
			PilotSalary:    pilotSalary.Int64,
			CompanyRevenue: companyRevenue.Int64,
			PassengerCount: settledPassengers.Int64,
			CargoKg:        settledCargo.Int64,
		}
	}
	return plan, nil
}

func collectPlans(rows *sql.Rows) ([]plandomain.FlightPlan, error) {
	var plans []plandomain.FlightPlan
	for rows.Next() {
		plan, err := scanPlanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan row: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plan rows: %w", err)
	}
	return plans, nil
}

func oneRowOrStale(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return storage.ErrStaleState
	}
	return nil
}

func boolToInt(value bool) int64 {
	if value {
		return 1
	}
	return 0
}
