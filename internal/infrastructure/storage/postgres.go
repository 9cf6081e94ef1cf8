package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PostgresStore implements Store on a pgx connection pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

type PostgresOptions struct {
	URL      string
	MaxConns int32
	Migrate  bool
}

func NewPostgresStore(ctx context.Context, opts PostgresOptions) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	if opts.Migrate {
		if err := Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

const userColumns = `id, email, first_name, last_name, profile_image_url, phone, location, preferences, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.ProfileImageURL,
		&u.Phone, &u.Location, &u.Preferences, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	return &u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *PostgresStore) UpsertUser(ctx context.Context, in UpsertUser) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, first_name, last_name, profile_image_url)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			email = COALESCE(EXCLUDED.email, users.email),
			first_name = COALESCE(EXCLUDED.first_name, users.first_name),
			last_name = COALESCE(EXCLUDED.last_name, users.last_name),
			profile_image_url = COALESCE(EXCLUDED.profile_image_url, users.profile_image_url),
			updated_at = now()
		RETURNING `+userColumns,
		in.ID, in.Email, in.FirstName, in.LastName, in.ProfileImageURL))
}

func (s *PostgresStore) UpdateUserPreferences(ctx context.Context, userID string, prefs Preferences) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		UPDATE users SET preferences = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns, userID, prefs))
}

const deviceColumns = `id, user_id, name, serial_number, battery_level, is_online, last_seen, created_at`

func scanDevice(row pgx.Row) (*Device, error) {
	var d Device
	err := row.Scan(&d.ID, &d.UserID, &d.Name, &d.SerialNumber, &d.BatteryLevel,
		&d.IsOnline, &d.LastSeen, &d.CreatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	return &d, nil
}

func (s *PostgresStore) CreateDevice(ctx context.Context, in NewDevice) (*Device, error) {
	return scanDevice(s.pool.QueryRow(ctx, `
		INSERT INTO devices (user_id, name, serial_number, battery_level, is_online)
		VALUES ($1, $2, $3, COALESCE($4, 100), COALESCE($5, false))
		RETURNING `+deviceColumns,
		in.UserID, in.Name, in.SerialNumber, in.BatteryLevel, in.IsOnline))
}

func (s *PostgresStore) GetDevice(ctx context.Context, deviceID string) (*Device, error) {
	if !isUUID(deviceID) {
		return nil, ErrNotFound
	}
	return scanDevice(s.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, deviceID))
}

func (s *PostgresStore) ListDevicesByUser(ctx context.Context, userID string) ([]Device, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+deviceColumns+` FROM devices WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return collect(rows, scanDevice)
}

func (s *PostgresStore) UpdateDeviceStatus(ctx context.Context, deviceID string, isOnline bool, batteryLevel *int) error {
	if !isUUID(deviceID) {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE devices
		SET is_online = $2, last_seen = now(), battery_level = COALESCE($3, battery_level)
		WHERE id = $1`, deviceID, isOnline, batteryLevel)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const locationColumns = `id, device_id, latitude, longitude, accuracy, speed, address, "timestamp"`

func scanLocation(row pgx.Row) (*Location, error) {
	var l Location
	err := row.Scan(&l.ID, &l.DeviceID, &l.Latitude, &l.Longitude, &l.Accuracy, &l.Speed, &l.Address, &l.Timestamp)
	if err != nil {
		return nil, translateError(err)
	}
	return &l, nil
}

func (s *PostgresStore) AddLocation(ctx context.Context, in NewLocation) (*Location, error) {
	if !isUUID(in.DeviceID) {
		return nil, ErrNotFound
	}
	return scanLocation(s.pool.QueryRow(ctx, `
		INSERT INTO locations (device_id, latitude, longitude, accuracy, speed, address)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+locationColumns,
		in.DeviceID, in.Latitude, in.Longitude, in.Accuracy, in.Speed, in.Address))
}

func (s *PostgresStore) LatestLocation(ctx context.Context, deviceID string) (*Location, error) {
	if !isUUID(deviceID) {
		return nil, ErrNotFound
	}
	return scanLocation(s.pool.QueryRow(ctx, `
		SELECT `+locationColumns+` FROM locations
		WHERE device_id = $1 ORDER BY "timestamp" DESC LIMIT 1`, deviceID))
}

func (s *PostgresStore) LocationHistory(ctx context.Context, deviceID string, limit int) ([]Location, error) {
	if !isUUID(deviceID) {
		return []Location{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+locationColumns+` FROM locations
		WHERE device_id = $1 ORDER BY "timestamp" DESC LIMIT $2`,
		deviceID, normalizeLimit(limit, DefaultHistoryLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to query location history: %w", err)
	}
	return collect(rows, scanLocation)
}

const weatherColumns = `id, device_id, temperature, humidity, pressure, wind_speed, visibility, rain_level, condition, "timestamp"`

func scanWeather(row pgx.Row) (*WeatherData, error) {
	var w WeatherData
	err := row.Scan(&w.ID, &w.DeviceID, &w.Temperature, &w.Humidity, &w.Pressure,
		&w.WindSpeed, &w.Visibility, &w.RainLevel, &w.Condition, &w.Timestamp)
	if err != nil {
		return nil, translateError(err)
	}
	return &w, nil
}

func (s *PostgresStore) AddWeatherData(ctx context.Context, in NewWeatherData) (*WeatherData, error) {
	if !isUUID(in.DeviceID) {
		return nil, ErrNotFound
	}
	return scanWeather(s.pool.QueryRow(ctx, `
		INSERT INTO weather_data (device_id, temperature, humidity, pressure, wind_speed, visibility, rain_level, condition)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+weatherColumns,
		in.DeviceID, in.Temperature, in.Humidity, in.Pressure, in.WindSpeed, in.Visibility, in.RainLevel, in.Condition))
}

func (s *PostgresStore) LatestWeather(ctx context.Context, deviceID string) (*WeatherData, error) {
	if !isUUID(deviceID) {
		return nil, ErrNotFound
	}
	return scanWeather(s.pool.QueryRow(ctx, `
		SELECT `+weatherColumns+` FROM weather_data
		WHERE device_id = $1 ORDER BY "timestamp" DESC LIMIT 1`, deviceID))
}

func (s *PostgresStore) WeatherHistory(ctx context.Context, deviceID string, limit int) ([]WeatherData, error) {
	if !isUUID(deviceID) {
		return []WeatherData{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+weatherColumns+` FROM weather_data
		WHERE device_id = $1 ORDER BY "timestamp" DESC LIMIT $2`,
		deviceID, normalizeLimit(limit, DefaultHistoryLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to query weather history: %w", err)
	}
	return collect(rows, scanWeather)
}

const activityColumns = `id, user_id, title, description, scheduled_time, icon, priority, is_enabled, is_completed, completed_at, created_at, updated_at`

func scanActivity(row pgx.Row) (*Activity, error) {
	var a Activity
	err := row.Scan(&a.ID, &a.UserID, &a.Title, &a.Description, &a.ScheduledTime, &a.Icon,
		&a.Priority, &a.IsEnabled, &a.IsCompleted, &a.CompletedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	return &a, nil
}

func (s *PostgresStore) CreateActivity(ctx context.Context, in NewActivity) (*Activity, error) {
	return scanActivity(s.pool.QueryRow(ctx, `
		INSERT INTO activities (user_id, title, description, scheduled_time, icon, priority, is_enabled)
		VALUES ($1, $2, $3, $4, COALESCE($5, 'Bell'), COALESCE($6, 'medium'), COALESCE($7, true))
		RETURNING `+activityColumns,
		in.UserID, in.Title, in.Description, in.ScheduledTime, in.Icon, in.Priority, in.IsEnabled))
}

func (s *PostgresStore) ListActivitiesByUser(ctx context.Context, userID string) ([]Activity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+activityColumns+` FROM activities
		WHERE user_id = $1 ORDER BY scheduled_time ASC NULLS LAST, created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	return collect(rows, scanActivity)
}

func (s *PostgresStore) UpdateActivity(ctx context.Context, userID, activityID string, p ActivityPatch) (*Activity, error) {
	if !isUUID(activityID) {
		return nil, ErrNotFound
	}
	return scanActivity(s.pool.QueryRow(ctx, `
		UPDATE activities SET
			title = COALESCE($3, title),
			description = COALESCE($4, description),
			scheduled_time = COALESCE($5, scheduled_time),
			icon = COALESCE($6, icon),
			priority = COALESCE($7, priority),
			is_enabled = COALESCE($8, is_enabled),
			updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING `+activityColumns,
		activityID, userID, p.Title, p.Description, p.ScheduledTime, p.Icon, p.Priority, p.IsEnabled))
}

func (s *PostgresStore) ToggleActivityCompletion(ctx context.Context, userID, activityID string, completed bool) (*Activity, error) {
	if !isUUID(activityID) {
		return nil, ErrNotFound
	}
	return scanActivity(s.pool.QueryRow(ctx, `
		UPDATE activities SET
			is_completed = $3,
			completed_at = CASE WHEN $3 THEN now() ELSE NULL END,
			updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING `+activityColumns, activityID, userID, completed))
}

const outfitColumns = `id, user_id, name, items, temperature, weather, confidence, liked, created_at`

func scanOutfit(row pgx.Row) (*OutfitRecommendation, error) {
	var o OutfitRecommendation
	err := row.Scan(&o.ID, &o.UserID, &o.Name, &o.Items, &o.Temperature, &o.Weather, &o.Confidence, &o.Liked, &o.CreatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	return &o, nil
}

func (s *PostgresStore) CreateOutfitRecommendation(ctx context.Context, in NewOutfitRecommendation) (*OutfitRecommendation, error) {
	items := in.Items
	if items == nil {
		items = []string{}
	}
	return scanOutfit(s.pool.QueryRow(ctx, `
		INSERT INTO outfit_recommendations (user_id, name, items, temperature, weather, confidence)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, 80))
		RETURNING `+outfitColumns,
		in.UserID, in.Name, items, in.Temperature, in.Weather, in.Confidence))
}

func (s *PostgresStore) ListOutfitRecommendations(ctx context.Context, userID string, limit int) ([]OutfitRecommendation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+outfitColumns+` FROM outfit_recommendations
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, normalizeLimit(limit, DefaultOutfitLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to list outfit recommendations: %w", err)
	}
	return collect(rows, scanOutfit)
}

func (s *PostgresStore) RateOutfit(ctx context.Context, userID, outfitID string, liked bool) (*OutfitRecommendation, error) {
	if !isUUID(outfitID) {
		return nil, ErrNotFound
	}
	return scanOutfit(s.pool.QueryRow(ctx, `
		UPDATE outfit_recommendations SET liked = $3
		WHERE id = $1 AND user_id = $2
		RETURNING `+outfitColumns, outfitID, userID, liked))
}

const contactColumns = `id, user_id, name, phone, relationship, created_at, updated_at`

func scanContact(row pgx.Row) (*EmergencyContact, error) {
	var c EmergencyContact
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Phone, &c.Relationship, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	return &c, nil
}

func (s *PostgresStore) CreateEmergencyContact(ctx context.Context, in NewEmergencyContact) (*EmergencyContact, error) {
	return scanContact(s.pool.QueryRow(ctx, `
		INSERT INTO emergency_contacts (user_id, name, phone, relationship)
		VALUES ($1, $2, $3, $4)
		RETURNING `+contactColumns, in.UserID, in.Name, in.Phone, in.Relationship))
}

func (s *PostgresStore) ListEmergencyContacts(ctx context.Context, userID string) ([]EmergencyContact, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+contactColumns+` FROM emergency_contacts
		WHERE user_id = $1 ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list emergency contacts: %w", err)
	}
	return collect(rows, scanContact)
}

func (s *PostgresStore) UpdateEmergencyContact(ctx context.Context, userID, contactID string, p EmergencyContactPatch) (*EmergencyContact, error) {
	if !isUUID(contactID) {
		return nil, ErrNotFound
	}
	return scanContact(s.pool.QueryRow(ctx, `
		UPDATE emergency_contacts SET
			name = COALESCE($3, name),
			phone = COALESCE($4, phone),
			relationship = COALESCE($5, relationship),
			updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING `+contactColumns, contactID, userID, p.Name, p.Phone, p.Relationship))
}

func (s *PostgresStore) DeleteEmergencyContact(ctx context.Context, userID, contactID string) error {
	if !isUUID(contactID) {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM emergency_contacts WHERE id = $1 AND user_id = $2`, contactID, userID)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const alertColumns = `id, user_id, device_id, location_id, is_active, resolved_at, created_at`

func scanAlert(row pgx.Row) (*EmergencyAlert, error) {
	var a EmergencyAlert
	err := row.Scan(&a.ID, &a.UserID, &a.DeviceID, &a.LocationID, &a.IsActive, &a.ResolvedAt, &a.CreatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	return &a, nil
}

func (s *PostgresStore) CreateEmergencyAlert(ctx context.Context, in NewEmergencyAlert) (*EmergencyAlert, error) {
	if !isUUID(in.DeviceID) || (in.LocationID != nil && !isUUID(*in.LocationID)) {
		return nil, ErrNotFound
	}
	return scanAlert(s.pool.QueryRow(ctx, `
		INSERT INTO emergency_alerts (user_id, device_id, location_id)
		VALUES ($1, $2, $3)
		RETURNING `+alertColumns, in.UserID, in.DeviceID, in.LocationID))
}

func (s *PostgresStore) ListActiveEmergencyAlerts(ctx context.Context, userID string) ([]EmergencyAlert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+alertColumns+` FROM emergency_alerts
		WHERE user_id = $1 AND is_active ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list emergency alerts: %w", err)
	}
	return collect(rows, scanAlert)
}

func (s *PostgresStore) ResolveEmergencyAlert(ctx context.Context, userID, alertID string) (*EmergencyAlert, error) {
	if !isUUID(alertID) {
		return nil, ErrNotFound
	}
	return scanAlert(s.pool.QueryRow(ctx, `
		UPDATE emergency_alerts SET is_active = false, resolved_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING `+alertColumns, alertID, userID))
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err)
	}
	return out, nil
}

func translateError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

// uuid columns reject malformed ids at the protocol level; treat them as absent
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
