// Package sqldb file: internal/adapter/datasource/sqldb/dialect.go
package sqldb

import (
	"net"
	"net/url"
	"strings"
	"time"

	"QueryAegis/internal/core/dberr"

	"github.com/go-sql-driver/mysql"
)

// dialect 描述一种关系型后端的驱动与占位符风格
type dialect struct {
	backend    string // dberr 后端标签
	driver     string // database/sql 驱动名
	dollarArgs bool   // true 使用 $1..$n，否则使用 ?
}

var (
	dialectSQLite   = dialect{backend: dberr.BackendSQLite, driver: "sqlite"}
	dialectPostgres = dialect{backend: dberr.BackendPostgreSQL, driver: "pgx", dollarArgs: true}
	dialectMySQL    = dialect{backend: dberr.BackendMySQL, driver: "mysql"}
)

// BaseScheme 去掉 "+driver" 后缀并转小写，例如 postgresql+asyncpg -> postgresql。
func BaseScheme(rawURL string) string {
	idx := strings.Index(rawURL, "://")
	if idx <= 0 {
		return ""
	}
	scheme := strings.ToLower(rawURL[:idx])
	if plus := strings.Index(scheme, "+"); plus > 0 {
		scheme = scheme[:plus]
	}
	return scheme
}

// IsSQLScheme 判断连接串是否属于关系型后端
func IsSQLScheme(rawURL string) bool {
	switch BaseScheme(rawURL) {
	case "sqlite", "sqlite3", "postgres", "postgresql", "mysql", "mariadb":
		return true
	}
	return false
}

// BackendName 返回连接串对应的后端标签，非关系型连接串返回空串
func BackendName(rawURL string) string {
	switch BaseScheme(rawURL) {
	case "sqlite", "sqlite3":
		return dialectSQLite.backend
	case "postgres", "postgresql":
		return dialectPostgres.backend
	case "mysql", "mariadb":
		return dialectMySQL.backend
	}
	return ""
}

// resolveDSN 把统一格式的连接串转换成驱动可接受的 DSN。
func resolveDSN(rawURL string, connectTimeout time.Duration) (dialect, string, error) {
	scheme := BaseScheme(rawURL)
	rest := rawURL[strings.Index(rawURL, "://")+3:]
	switch scheme {
	case "sqlite", "sqlite3":
		// sqlite:///./data.db -> ./data.db, sqlite:////abs/x.db -> /abs/x.db
		path := strings.TrimPrefix(rest, "/")
		if path == "" {
			return dialect{}, "", dberr.Query(dberr.BackendSQLite, "SQLite URL is missing a database path")
		}
		return dialectSQLite, path, nil
	case "postgres", "postgresql":
		return dialectPostgres, "postgres://" + rest, nil
	case "mysql", "mariadb":
		u, err := url.Parse("mysql://" + rest)
		if err != nil {
			return dialect{}, "", dberr.Query(dberr.BackendMySQL, "invalid MySQL URL: %v", err)
		}
		cfg := mysql.NewConfig()
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
		cfg.Net = "tcp"
		cfg.Addr = u.Host
		if _, _, splitErr := net.SplitHostPort(u.Host); splitErr != nil {
			cfg.Addr = net.JoinHostPort(u.Host, "3306")
		}
		cfg.DBName = strings.TrimPrefix(u.Path, "/")
		cfg.ParseTime = true
		cfg.Timeout = connectTimeout
		return dialectMySQL, cfg.FormatDSN(), nil
	}
	return dialect{}, "", dberr.Query("", "unsupported SQL database url scheme '%s'", scheme)
}
