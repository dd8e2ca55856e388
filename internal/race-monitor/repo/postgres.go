package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/radieske/race-odds-monitor/internal/race-monitor/model"
)

// Postgres implementa o armazenamento de corridas, runners e históricos
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

const raceColumns = `id, url, name, meeting, start_time, baseline_set_at, last_bumped_at,
	is_active, result_checked, winner_name, next_race_url, created_at`

const runnerColumns = `id, race_id, number, name, COALESCE(jockey, ''), COALESCE(silk_url, ''),
	current_odds, baseline_odds, is_d4, status_text, steam_percentage, is_value,
	is_previous_steamer, is_non_runner, last_updated`

type scanner interface {
	Scan(dest ...any) error
}

func scanRace(s scanner) (model.Race, error) {
	var (
		r               model.Race
		start, baseline sql.NullTime
		winner, next    sql.NullString
	)
	err := s.Scan(&r.ID, &r.URL, &r.Name, &r.Meeting, &start, &baseline, &r.LastBumpedAt,
		&r.IsActive, &r.ResultChecked, &winner, &next, &r.CreatedAt)
	if err != nil {
		return r, err
	}
	r.StartTime = nullTime(start)
	r.BaselineSetAt = nullTime(baseline)
	r.WinnerName = nullString(winner)
	r.NextRaceURL = nullString(next)
	return r, nil
}

func scanRunner(s scanner) (model.Runner, error) {
	var (
		rn       model.Runner
		baseline sql.NullFloat64
	)
	err := s.Scan(&rn.ID, &rn.RaceID, &rn.Number, &rn.Name, &rn.Jockey, &rn.SilkURL,
		&rn.CurrentOdds, &baseline, &rn.IsD4, &rn.StatusText, &rn.SteamPercentage, &rn.IsValue,
		&rn.IsPreviousSteamer, &rn.IsNonRunner, &rn.LastUpdated)
	if err != nil {
		return rn, err
	}
	if baseline.Valid {
		v := baseline.Float64
		rn.BaselineOdds = &v
	}
	return rn, nil
}

// CreateRace insere a corrida; URL já monitorada devolve ErrAlreadyExists
func (p *Postgres) CreateRace(ctx context.Context, r *model.Race) error {
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO races (url, name, meeting, start_time, last_bumped_at, is_active, next_race_url)
		VALUES ($1,$2,$3,$4,$5,TRUE,$6)
		ON CONFLICT (url) DO NOTHING
		RETURNING id, created_at`,
		r.URL, r.Name, r.Meeting, r.StartTime, r.LastBumpedAt, r.NextRaceURL,
	).Scan(&r.ID, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert race: %w", err)
	}
	r.IsActive = true
	return nil
}

// GetRace devolve a corrida com seus runners
func (p *Postgres) GetRace(ctx context.Context, id int64) (*model.Race, error) {
	r, err := scanRace(p.db.QueryRowContext(ctx, `SELECT `+raceColumns+` FROM races WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get race %d: %w", id, err)
	}
	runners, err := p.runnersFor(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	r.Runners = runners[id]
	return &r, nil
}

// GetRaceByURL devolve a corrida sem runners
func (p *Postgres) GetRaceByURL(ctx context.Context, url string) (*model.Race, error) {
	r, err := scanRace(p.db.QueryRowContext(ctx, `SELECT `+raceColumns+` FROM races WHERE url=$1`, url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get race by url: %w", err)
	}
	return &r, nil
}

// ListRaces devolve todas as corridas (ativas primeiro, mais recentes no topo) com runners
// Os runners são carregados numa única consulta
func (p *Postgres) ListRaces(ctx context.Context) ([]model.Race, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+raceColumns+` FROM races
		ORDER BY is_active DESC, last_bumped_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list races: %w", err)
	}
	defer rows.Close()

	var (
		races []model.Race
		ids   []int64
	)
	for rows.Next() {
		r, err := scanRace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan race: %w", err)
		}
		races = append(races, r)
		ids = append(ids, r.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return races, nil
	}

	byRace, err := p.runnersFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range races {
		races[i].Runners = byRace[races[i].ID]
	}
	return races, nil
}

// LatestActiveRaces devolve as corridas ativas mais recentemente priorizadas, sem runners
func (p *Postgres) LatestActiveRaces(ctx context.Context, limit int) ([]model.Race, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+raceColumns+` FROM races
		WHERE is_active
		ORDER BY last_bumped_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list active races: %w", err)
	}
	defer rows.Close()

	var out []model.Race
	for rows.Next() {
		r, err := scanRace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan race: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) runnersFor(ctx context.Context, raceIDs []int64) (map[int64][]model.Runner, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+runnerColumns+` FROM runners
		WHERE race_id = ANY($1)
		ORDER BY race_id, number, id`, pq.Array(raceIDs))
	if err != nil {
		return nil, fmt.Errorf("list runners: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]model.Runner, len(raceIDs))
	for rows.Next() {
		rn, err := scanRunner(rows)
		if err != nil {
			return nil, fmt.Errorf("scan runner: %w", err)
		}
		out[rn.RaceID] = append(out[rn.RaceID], rn)
	}
	return out, rows.Err()
}

// BumpRace move a corrida para o topo da prioridade
func (p *Postgres) BumpRace(ctx context.Context, id int64, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `UPDATE races SET last_bumped_at=$1 WHERE id=$2`, at, id)
	if err != nil {
		return fmt.Errorf("bump race %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveRaceState grava a corrida e os runners alterados numa transação.
// IDs de runners novos são preenchidos em changes; odds alteradas geram odds_history
func (p *Postgres) SaveRaceState(ctx context.Context, r *model.Race, changes []model.RunnerChange) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := updateRace(ctx, tx, r); err != nil {
		return err
	}

	for i := range changes {
		rn := &changes[i].Runner
		rn.RaceID = r.ID
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO runners
			  (race_id, number, name, jockey, silk_url, current_odds, baseline_odds, is_d4, status_text,
			   steam_percentage, is_value, is_previous_steamer, is_non_runner, last_updated)
			VALUES ($1,$2,$3,NULLIF($4,''),NULLIF($5,''),$6,$7,$8,$9,$10,$11,$12,$13,$14)
			ON CONFLICT (race_id, name) DO UPDATE SET
			  number           = EXCLUDED.number,
			  jockey           = EXCLUDED.jockey,
			  silk_url         = EXCLUDED.silk_url,
			  current_odds     = EXCLUDED.current_odds,
			  baseline_odds    = EXCLUDED.baseline_odds,
			  is_d4            = EXCLUDED.is_d4,
			  status_text      = EXCLUDED.status_text,
			  steam_percentage = EXCLUDED.steam_percentage,
			  is_value         = EXCLUDED.is_value,
			  is_non_runner    = EXCLUDED.is_non_runner,
			  last_updated     = EXCLUDED.last_updated
			RETURNING id`,
			rn.RaceID, rn.Number, rn.Name, rn.Jockey, rn.SilkURL, rn.CurrentOdds, rn.BaselineOdds, rn.IsD4,
			rn.StatusText, rn.SteamPercentage, rn.IsValue, rn.IsPreviousSteamer, rn.IsNonRunner, rn.LastUpdated,
		).Scan(&rn.ID); err != nil {
			return fmt.Errorf("upsert runner %q: %w", rn.Name, err)
		}

		if changes[i].OddsChanged {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO odds_history (runner_id, odds, recorded_at) VALUES ($1,$2,$3)`,
				rn.ID, rn.CurrentOdds, rn.LastUpdated); err != nil {
				return fmt.Errorf("insert odds history: %w", err)
			}
		}
	}

	return tx.Commit()
}

// FinalizeRace grava o vencedor, encerra a corrida e registra o histórico de vencedores
func (p *Postgres) FinalizeRace(ctx context.Context, r *model.Race, winner *model.WinnerHistory) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	r.IsActive = false
	if err := updateRace(ctx, tx, r); err != nil {
		return err
	}
	if winner != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO winner_history (horse_name, race_date, final_odds, steam_percentage, is_steamer)
			VALUES ($1,$2,$3,$4,$5)`,
			winner.HorseName, winner.RaceDate, winner.FinalOdds, winner.SteamPercentage, winner.IsSteamer,
		); err != nil {
			return fmt.Errorf("insert winner history: %w", err)
		}
	}
	return tx.Commit()
}

// updateRace nunca reativa uma corrida: is_active só pode ir de true para false
func updateRace(ctx context.Context, tx *sql.Tx, r *model.Race) error {
	err := tx.QueryRowContext(ctx, `
		UPDATE races SET
		  name=$2, meeting=$3, start_time=$4, baseline_set_at=$5,
		  is_active = is_active AND $6,
		  result_checked=$7, winner_name=$8, next_race_url=$9
		WHERE id=$1
		RETURNING is_active`,
		r.ID, r.Name, r.Meeting, r.StartTime, r.BaselineSetAt, r.IsActive,
		r.ResultChecked, r.WinnerName, r.NextRaceURL,
	).Scan(&r.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update race %d: %w", r.ID, err)
	}
	return nil
}

// SteamerWinners indica quais nomes já venceram uma corrida como steamer
func (p *Postgres) SteamerWinners(ctx context.Context, names []string) (map[string]bool, error) {
	out := make(map[string]bool, len(names))
	if len(names) == 0 {
		return out, nil
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT horse_name FROM winner_history
		WHERE is_steamer AND horse_name = ANY($1)`, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("query winner history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

// ResetKeepLatest apaga todas as corridas menos a de maior id (a criada por último).
// Runners e histórico de odds saem em cascata. keptID é 0 quando não havia corridas
func (p *Postgres) ResetKeepLatest(ctx context.Context) (keptID int64, deleted int64, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	var latest sql.NullInt64
	if err = tx.QueryRowContext(ctx, `SELECT MAX(id) FROM races`).Scan(&latest); err != nil {
		return 0, 0, fmt.Errorf("select latest race: %w", err)
	}

	var res sql.Result
	if latest.Valid {
		keptID = latest.Int64
		res, err = tx.ExecContext(ctx, `DELETE FROM races WHERE id <> $1`, keptID)
	} else {
		// sem corridas: limpa eventuais runners órfãos
		res, err = tx.ExecContext(ctx, `DELETE FROM runners`)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("delete races: %w", err)
	}
	if latest.Valid {
		deleted, _ = res.RowsAffected()
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, err
	}
	return keptID, deleted, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
