package database

import (
	"database/sql"
	"io/fs"
	"net/url"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgpaboard/cgpaboard/core"
)

func Test_dsn(t *testing.T) {
	conf := &core.Config{Database: core.DatabaseConfig{
		Engine:        "postgres",
		Host:          "db.local",
		Port:          "5433",
		Name:          "cgpaboard",
		User:          "app",
		Password:      "p@ss word",
		AdminUser:     "postgres",
		AdminPassword: "root",
	}}

	tests := []struct {
		name       string
		admin      bool
		disableTLS bool
		wantUser   string
		wantPwd    string
		wantSSL    string
	}{
		{name: "app user", wantUser: "app", wantPwd: "p@ss word", wantSSL: "require"},
		{name: "admin user", admin: true, wantUser: "postgres", wantPwd: "root", wantSSL: "require"},
		{name: "no TLS", disableTLS: true, wantUser: "app", wantPwd: "p@ss word", wantSSL: "disable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf.Database.DisableTLS = tt.disableTLS
			u, err := url.Parse(dsn("cgpaboard", tt.admin, conf))
			require.NoError(t, err)

			pwd, _ := u.User.Password()
			assert.Equal(t, "postgres", u.Scheme)
			assert.Equal(t, "db.local:5433", u.Host)
			assert.Equal(t, "/cgpaboard", u.Path)
			assert.Equal(t, tt.wantUser, u.User.Username())
			assert.Equal(t, tt.wantPwd, pwd)
			assert.Equal(t, tt.wantSSL, u.Query().Get("sslmode"))
			assert.Equal(t, "utc", u.Query().Get("timezone"))
		})
	}

	t.Run("admin falls back to app user", func(t *testing.T) {
		c := *conf
		c.Database.AdminUser = ""
		u, err := url.Parse(dsn("postgres", true, &c))
		require.NoError(t, err)
		assert.Equal(t, "app", u.User.Username())
	})
}

func TestMigrate(t *testing.T) {
	orig := gooseUpFunc
	defer func() { gooseUpFunc = orig }()

	var gotDir string
	gooseUpFunc = func(_ *sql.DB, fsys fs.FS, dir string) error {
		gotDir = dir
		names, err := fs.Glob(fsys, dir+"/*.sql")
		if err != nil {
			return err
		}
		if len(names) == 0 {
			return errors.New("no migrations embedded")
		}
		return nil
	}
	require.NoError(t, Migrate(nil))
	assert.Equal(t, "migrations", gotDir)

	gooseUpFunc = func(*sql.DB, fs.FS, string) error { return errors.New("boom") }
	assert.EqualError(t, Migrate(nil), "migrating database: boom")
}
