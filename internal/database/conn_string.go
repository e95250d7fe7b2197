package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/impactflow/notify-client/internal/config"
)

// ApplicationName is reported to PostgreSQL in pg_stat_activity.
const ApplicationName = "notify-client"

// BuildConnString builds a PostgreSQL connection URL from config. User and
// password are escaped, so special characters are safe.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
		RawQuery: url.Values{
			"sslmode":          []string{sslMode},
			"application_name": []string{ApplicationName},
		}.Encode(),
	}
	return u.String()
}
