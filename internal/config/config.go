package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"dalau/agenda/internal/domain"
)

const (
	ChannelLog   = "log"
	ChannelExpo  = "expo"
	ChannelEmail = "email"
)

type Config struct {
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	ShutdownTimeout   time.Duration
	LogLevel          string

	Timezone    string
	Location    *time.Location
	Catalog     domain.Catalog
	CountryCode string

	NextDayHour   int
	NextDayMinute int
	DailyHour     int
	DailyMinute   int
	FollowUpDays  int
	FollowUpHour  int

	DispatchInterval    time.Duration
	DispatchBatchSize   int
	DispatchBackoff     time.Duration
	DispatchMaxAttempts int

	NotifyChannel string
	ExpoTokens    []string
	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPassword  string
	SMTPFrom      string
	MailTo        []string
}

func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AGENDA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database.url", "file:agenda.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.conn_max_idle_time", "5m")
	v.SetDefault("shutdown.timeout", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("timezone", "Local")
	v.SetDefault("catalog", strings.Join(domain.DefaultCatalog, ","))
	v.SetDefault("whatsapp.country_code", "57")
	v.SetDefault("reminders.next_day", "21:00")
	v.SetDefault("reminders.daily", "20:00")
	v.SetDefault("reminders.follow_up_days", 28)
	v.SetDefault("reminders.follow_up_hour", 9)
	v.SetDefault("dispatch.interval", "30s")
	v.SetDefault("dispatch.batch_size", 50)
	v.SetDefault("dispatch.backoff", "1m")
	v.SetDefault("dispatch.max_attempts", 5)
	v.SetDefault("notify.channel", ChannelLog)
	v.SetDefault("notify.expo_tokens", "")
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.user", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.to", "")

	_ = v.BindEnv("config_file", "AGENDA_CONFIG_FILE")
	_ = v.BindEnv("database.url", "AGENDA_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("shutdown.timeout", "AGENDA_SHUTDOWN_TIMEOUT", "SHUTDOWN_TIMEOUT")
	_ = v.BindEnv("log.level", "AGENDA_LOG_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("timezone", "AGENDA_TIMEZONE")
	_ = v.BindEnv("smtp.host", "AGENDA_SMTP_HOST", "SMTP_HOST")
	_ = v.BindEnv("smtp.port", "AGENDA_SMTP_PORT", "SMTP_PORT")
	_ = v.BindEnv("smtp.user", "AGENDA_SMTP_USER", "SMTP_USER")
	_ = v.BindEnv("smtp.password", "AGENDA_SMTP_PASSWORD", "SMTP_PASS")

	if path := strings.TrimSpace(v.GetString("config_file")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	durations := map[string]time.Duration{}
	for _, key := range []string{
		"database.conn_max_lifetime",
		"database.conn_max_idle_time",
		"shutdown.timeout",
		"dispatch.interval",
		"dispatch.backoff",
	} {
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", key, err)
		}
		durations[key] = d
	}

	tz := strings.TrimSpace(v.GetString("timezone"))
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Config{}, fmt.Errorf("timezone: %w", err)
	}

	nextDayHour, nextDayMinute, err := clock(v.GetString("reminders.next_day"))
	if err != nil {
		return Config{}, fmt.Errorf("reminders.next_day: %w", err)
	}
	dailyHour, dailyMinute, err := clock(v.GetString("reminders.daily"))
	if err != nil {
		return Config{}, fmt.Errorf("reminders.daily: %w", err)
	}
	followUpHour := v.GetInt("reminders.follow_up_hour")
	if followUpHour < 0 || followUpHour > 23 {
		return Config{}, fmt.Errorf("reminders.follow_up_hour: %d out of range", followUpHour)
	}

	catalog := list(v, "catalog")
	if len(catalog) == 0 {
		return Config{}, fmt.Errorf("catalog: at least one service is required")
	}

	channel := strings.ToLower(strings.TrimSpace(v.GetString("notify.channel")))
	switch channel {
	case ChannelLog, ChannelExpo, ChannelEmail:
	default:
		return Config{}, fmt.Errorf("notify.channel: unknown channel %q", channel)
	}

	return Config{
		DatabaseURL:       strings.TrimSpace(v.GetString("database.url")),
		DBMaxOpenConns:    v.GetInt("database.max_open_conns"),
		DBMaxIdleConns:    v.GetInt("database.max_idle_conns"),
		DBConnMaxLifetime: durations["database.conn_max_lifetime"],
		DBConnMaxIdleTime: durations["database.conn_max_idle_time"],
		ShutdownTimeout:   durations["shutdown.timeout"],
		LogLevel:          v.GetString("log.level"),

		Timezone:    tz,
		Location:    loc,
		Catalog:     domain.Catalog(catalog),
		CountryCode: strings.TrimPrefix(strings.TrimSpace(v.GetString("whatsapp.country_code")), "+"),

		NextDayHour:   nextDayHour,
		NextDayMinute: nextDayMinute,
		DailyHour:     dailyHour,
		DailyMinute:   dailyMinute,
		FollowUpDays:  v.GetInt("reminders.follow_up_days"),
		FollowUpHour:  followUpHour,

		DispatchInterval:    durations["dispatch.interval"],
		DispatchBatchSize:   v.GetInt("dispatch.batch_size"),
		DispatchBackoff:     durations["dispatch.backoff"],
		DispatchMaxAttempts: v.GetInt("dispatch.max_attempts"),

		NotifyChannel: channel,
		ExpoTokens:    list(v, "notify.expo_tokens"),
		SMTPHost:      strings.TrimSpace(v.GetString("smtp.host")),
		SMTPPort:      v.GetInt("smtp.port"),
		SMTPUser:      v.GetString("smtp.user"),
		SMTPPassword:  v.GetString("smtp.password"),
		SMTPFrom:      v.GetString("smtp.from"),
		MailTo:        list(v, "smtp.to"),
	}, nil
}

func clock(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	if !domain.ValidClock(s) {
		return 0, 0, fmt.Errorf("%q is not a HH:MM time", s)
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), int(s[3]-'0')*10 + int(s[4]-'0'), nil
}

// list reads key as a comma separated string from the environment or as a
// YAML sequence from the config file.
func list(v *viper.Viper, key string) []string {
	var raw []string
	if s, ok := v.Get(key).(string); ok {
		raw = strings.Split(s, ",")
	} else {
		raw = v.GetStringSlice(key)
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
